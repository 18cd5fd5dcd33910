package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, handle func(*Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConn_ReadFrame_RoundTrip(t *testing.T) {
	received := make(chan []byte, 1)
	srv := newTestServer(t, func(conn *Conn) {
		frame, err := conn.ReadFrame(context.Background())
		if err != nil {
			t.Errorf("ReadFrame() error = %v", err)
			return
		}
		received <- frame
	})

	client := dial(t, srv)
	if err := client.WriteMessage(websocket.BinaryMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Errorf("ReadFrame() = %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestConn_ReadFrame_RejectsTextFrame(t *testing.T) {
	errCh := make(chan error, 1)
	srv := newTestServer(t, func(conn *Conn) {
		_, err := conn.ReadFrame(context.Background())
		errCh <- err
	})

	client := dial(t, srv)
	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected error for text frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestConn_WriteFrame_RejectsOversizedFrame(t *testing.T) {
	connCh := make(chan *Conn, 1)
	srv := newTestServer(t, func(conn *Conn) {
		connCh <- conn
	})

	dial(t, srv)
	conn := <-connCh

	oversized := make([]byte, 17*1024*1024)
	if err := conn.WriteFrame(context.Background(), oversized); err == nil {
		t.Error("expected error for oversized frame")
	}
}

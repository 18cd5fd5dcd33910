package session

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/permission"
	"github.com/bowber/mottomesh/protocol"
	"github.com/bowber/mottomesh/subject"
)

func (s *Session) handleSubscribe(m protocol.ClientSubscribe) error {
	if err := subject.Validate(m.Subject); err != nil {
		return s.enqueue(protocol.ServerSubscribeError{ID: m.ID, Reason: "invalid pattern"})
	}

	s.subsMu.Lock()
	if _, exists := s.subs[m.ID]; exists {
		s.subsMu.Unlock()
		return s.enqueue(protocol.ServerSubscribeError{ID: m.ID, Reason: "duplicate id"})
	}
	s.subsMu.Unlock()

	if !s.perms.Allow(permission.Subscribe, m.Subject) {
		if s.metrics != nil {
			s.metrics.RecordPermissionDenial("subscribe")
		}
		return s.enqueue(protocol.ServerSubscribeError{ID: m.ID, Reason: "permission denied"})
	}

	busSub, err := s.busClt.Subscribe(m.Subject)
	if err != nil {
		return s.enqueue(protocol.ServerSubscribeError{ID: m.ID, Reason: "bus unavailable"})
	}

	entry := &subscriptionEntry{id: m.ID, pattern: m.Subject, sub: busSub}
	s.subsMu.Lock()
	s.subs[m.ID] = entry
	s.subsMu.Unlock()

	if err := s.enqueue(protocol.ServerSubscribeOk{ID: m.ID}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSubscribe()
	}

	s.wg.Add(1)
	go s.bridgeSubscription(entry)
	return nil
}

// bridgeSubscription forwards bus deliveries into the session's fan-in
// channel until the subscription is unsubscribed (its channel closes) or
// the session itself closes.
func (s *Session) bridgeSubscription(entry *subscriptionEntry) {
	defer s.wg.Done()
	for msg := range entry.sub.Messages() {
		select {
		case s.deliveries <- delivery{subID: entry.id, msg: msg}:
		case <-s.closed:
			return
		}
	}
}

func (s *Session) handleUnsubscribe(m protocol.ClientUnsubscribe) {
	s.subsMu.Lock()
	entry, ok := s.subs[m.ID]
	if ok {
		delete(s.subs, m.ID)
	}
	s.subsMu.Unlock()

	if !ok {
		return
	}
	_ = entry.sub.Unsubscribe()
	if s.metrics != nil {
		s.metrics.RecordUnsubscribe()
	}
}

func (s *Session) handlePublish(ctx context.Context, m protocol.ClientPublish) error {
	if !s.perms.Allow(permission.Publish, m.Subject) {
		if s.metrics != nil {
			s.metrics.RecordPermissionDenial("publish")
		}
		return s.enqueue(protocol.ServerError{Code: protocol.CodeForbidden, Message: "permission denied"})
	}

	if err := s.busClt.Publish(ctx, m.Subject, m.Payload); err != nil {
		return s.enqueue(protocol.ServerError{Code: protocol.CodeServiceUnavail, Message: "bus unavailable"})
	}
	return nil
}

func (s *Session) handleRequest(ctx context.Context, m protocol.ClientRequest) error {
	if !s.perms.Allow(permission.Request, m.Subject) {
		if s.metrics != nil {
			s.metrics.RecordPermissionDenial("request")
		}
		return s.enqueue(protocol.ServerRequestError{RequestID: m.RequestID, Reason: "permission denied"})
	}

	if m.TimeoutMs == 0 {
		return s.enqueue(protocol.ServerRequestError{RequestID: m.RequestID, Reason: "timeout"})
	}

	s.pendingMu.Lock()
	s.pending[m.RequestID] = struct{}{}
	s.pendingMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRequestStart()
	}

	timeout := time.Duration(m.TimeoutMs) * time.Millisecond
	s.wg.Add(1)
	go s.awaitRequest(ctx, m.RequestID, m.Subject, m.Payload, timeout)
	return nil
}

func (s *Session) awaitRequest(ctx context.Context, requestID uint64, subj string, payload []byte, timeout time.Duration) {
	defer s.wg.Done()
	start := time.Now()

	respPayload, err := s.busClt.Request(ctx, subj, payload, timeout)

	reason := ""
	if err != nil {
		reason = "broker error"
		if stderrors.Is(err, errors.ErrRequestTimeout) {
			reason = "timeout"
		}
	}

	result := requestResult{
		requestID: requestID,
		payload:   respPayload,
		reason:    reason,
		duration:  time.Since(start),
	}

	select {
	case s.reqDone <- result:
	case <-s.closed:
	}
}

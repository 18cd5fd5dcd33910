package subject

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"exact match", "messages", "messages", true},
		{"exact mismatch", "messages", "other", false},
		{"single wildcard matches one token", "messages.*", "messages.user1", true},
		{"single wildcard rejects extra token", "messages.*", "messages.user1.inbox", false},
		{"single wildcard rejects unrelated subject", "messages.*", "other", false},
		{"tail wildcard matches one token", "messages.>", "messages.user1", true},
		{"tail wildcard matches many tokens", "messages.>", "messages.user1.inbox", true},
		{"tail wildcard matches deep nesting", "messages.>", "messages.a.b.c.d", true},
		{"tail wildcard rejects unrelated subject", "messages.>", "other", false},
		{"bare tail wildcard matches any non-empty subject", ">", "a.b.c", true},
		{"bare tail wildcard rejects empty subject", ">", "", false},
		{"bare single wildcard matches single token", "*", "a", true},
		{"bare single wildcard rejects multi-token subject", "*", "a.b", false},
		{"pattern longer than subject", "a.b.c", "a.b", false},
		{"pattern shorter than subject without tail wildcard", "a.b", "a.b.c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.pattern, tt.subject)
			if got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
			}
		})
	}
}

// single-token subjects are exactly those matched by "*"; this pins down P3.
func TestMatch_SingleWildcardIffSingleToken(t *testing.T) {
	subjects := []string{"a", "a.b", "a.b.c", ""}
	for _, s := range subjects {
		got := Match("*", s)
		want := s != "" && !containsDot(s)
		if got != want {
			t.Errorf("Match(%q, %q) = %v, want %v", "*", s, got, want)
		}
	}
}

// any non-empty subject is exactly what ">" matches; this pins down P3.
func TestMatch_TailWildcardIffNonEmpty(t *testing.T) {
	subjects := []string{"a", "a.b", "a.b.c", ""}
	for _, s := range subjects {
		got := Match(">", s)
		want := s != ""
		if got != want {
			t.Errorf("Match(%q, %q) = %v, want %v", ">", s, got, want)
		}
	}
}

func containsDot(s string) bool {
	for _, c := range s {
		if c == '.' {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"plain subject", "messages", false},
		{"single wildcard", "messages.*", false},
		{"terminal tail wildcard", "messages.>", false},
		{"bare tail wildcard", ">", false},
		{"empty pattern", "", true},
		{"empty token", "messages..inbox", true},
		{"non-terminal tail wildcard", "messages.>.inbox", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}
}

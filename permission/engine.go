// Package permission evaluates a session's capability and subject pattern
// lists against a concrete (capability, subject) request.
//
// Grounded on the checker in _examples' original gateway auth layer, with
// one deliberate change: an empty allow list denies every subject rather
// than allowing every subject. See DESIGN.md for the reasoning.
package permission

import (
	"strings"

	"github.com/bowber/mottomesh/subject"
)

// Capability is one operation class a token can authorize.
type Capability string

const (
	Publish   Capability = "publish"
	Subscribe Capability = "subscribe"
	Request   Capability = "request"
)

// ParseCapability parses a capability name case-insensitively. It reports
// ok=false for any string that is not one of publish/subscribe/request.
func ParseCapability(s string) (Capability, bool) {
	switch strings.ToLower(s) {
	case string(Publish):
		return Publish, true
	case string(Subscribe):
		return Subscribe, true
	case string(Request):
		return Request, true
	default:
		return "", false
	}
}

// Set evaluates (capability, subject) requests against a fixed rule set.
// A Set is immutable once built and safe for concurrent use by multiple
// session goroutines.
type Set struct {
	capabilities map[Capability]struct{}
	allow        []string
	deny         []string
}

// New builds a Set from a session's capability list and its allow/deny
// pattern lists. Patterns are not validated here; callers that accept
// patterns from untrusted claims should run them through subject.Validate
// first and drop or reject anything invalid.
func New(capabilities []Capability, allow, deny []string) *Set {
	caps := make(map[Capability]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}

	return &Set{
		capabilities: caps,
		allow:        append([]string(nil), allow...),
		deny:         append([]string(nil), deny...),
	}
}

// Allow reports whether the session may perform capability against subj.
//
// Evaluation order: absence of the capability denies outright; a matching
// deny pattern denies regardless of any allow pattern; an empty allow list
// denies everything; otherwise a matching allow pattern grants.
func (s *Set) Allow(capability Capability, subj string) bool {
	if _, ok := s.capabilities[capability]; !ok {
		return false
	}

	for _, pattern := range s.deny {
		if subject.Match(pattern, subj) {
			return false
		}
	}

	if len(s.allow) == 0 {
		return false
	}

	for _, pattern := range s.allow {
		if subject.Match(pattern, subj) {
			return true
		}
	}

	return false
}

// Package subject implements NATS-style subject pattern matching used to
// route bus messages to session subscriptions and to evaluate permission
// rules.
//
// Subjects are dot-separated non-empty tokens. Patterns add two wildcards:
// `*` matches exactly one token at that position, and `>` matches one or
// more trailing tokens and is only legal as the final token of a pattern.
package subject

import (
	"strings"

	"github.com/bowber/mottomesh/errors"
)

const (
	tokenWildcard = "*"
	tailWildcard  = ">"
)

// Validate reports whether pattern is well-formed: every token is non-empty,
// and `>` appears at most once and only as the final token.
func Validate(pattern string) error {
	if pattern == "" {
		return errors.WrapInvalid(errors.ErrInvalidSubject, "subject", "Validate", "empty pattern")
	}

	parts := strings.Split(pattern, ".")
	for i, p := range parts {
		if p == "" {
			return errors.WrapInvalid(errors.ErrInvalidSubject, "subject", "Validate", "empty token")
		}
		if p == tailWildcard && i != len(parts)-1 {
			return errors.WrapInvalid(errors.ErrInvalidSubject, "subject", "Validate", "> must be the final token")
		}
	}

	return nil
}

// Match reports whether subject satisfies pattern. Callers that accept
// patterns from untrusted input should Validate them first; Match itself
// treats a non-terminal `>` as a normal literal token rather than erroring,
// so an invalid pattern simply fails to match anything useful.
func Match(pattern, subject string) bool {
	if subject == "" {
		return false
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, p := range pTokens {
		if p == tailWildcard && i == len(pTokens)-1 {
			return i < len(sTokens)
		}

		if i >= len(sTokens) {
			return false
		}

		if p == tokenWildcard {
			continue
		}

		if p != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}

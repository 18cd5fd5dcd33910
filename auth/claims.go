// Package auth verifies signed session tokens and converts their claims
// into the capability/pattern form the permission engine consumes.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/bowber/mottomesh/permission"
)

// Claims is the payload carried by a gateway token: the standard registered
// claims plus the capability and subject-pattern lists that authorize a
// session.
type Claims struct {
	Permissions     []string `json:"permissions"`
	AllowedSubjects []string `json:"allowed_subjects"`
	DenySubjects    []string `json:"deny_subjects"`
	jwt.RegisteredClaims
}

// Capabilities converts the token's permission strings into the
// permission package's Capability type, silently dropping any string that
// does not name a known capability.
func (c *Claims) Capabilities() []permission.Capability {
	caps := make([]permission.Capability, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		if cap, ok := permission.ParseCapability(p); ok {
			caps = append(caps, cap)
		}
	}
	return caps
}

// PermissionSet builds a permission.Set from the token's capability and
// pattern lists. Allow/deny patterns are not validated: subject.Match
// compares them token by token like any other pattern, so a non-terminal `>`
// only matches a literal `>` token and an empty token only an empty one.
func (c *Claims) PermissionSet() *permission.Set {
	return permission.New(c.Capabilities(), c.AllowedSubjects, c.DenySubjects)
}

// Subject returns the token's subject claim.
func (c *Claims) Subject() string {
	sub, _ := c.GetSubject()
	return sub
}

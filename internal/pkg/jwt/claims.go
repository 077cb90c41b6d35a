// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

const PurposeAccess = "access"

// Claims carries the operator identity behind an admin request. The subject
// is the actor id stamped on activities.
type Claims struct {
	Roles   []string `json:"roles,omitempty"`
	Purpose string   `json:"purpose"`
	jwt.RegisteredClaims
}

// ActorID is the subject of the token.
func (c *Claims) ActorID() string {
	return c.Subject
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}

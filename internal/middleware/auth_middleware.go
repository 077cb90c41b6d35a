// internal/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"crm-service/internal/pkg/actor"
	"crm-service/internal/pkg/jwt"
	"crm-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxActorID = "actor_id"
	ctxJTI     = "jti"
	ctxRoles   = "roles"
)

type AuthMiddleware struct {
	verifier *jwt.Verifier
}

func NewAuthMiddleware(verifier *jwt.Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Auth validates the bearer token and puts the actor id on both the gin
// context and the request context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set(ctxActorID, claims.ActorID())
		c.Set(ctxJTI, claims.ID)
		c.Set(ctxRoles, claims.Roles)
		c.Request = c.Request.WithContext(actor.WithID(c.Request.Context(), claims.ActorID()))

		c.Next()
	}
}

// RequireRole requires at least one of roles. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles := GetRoles(c)
		for _, have := range userRoles {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}

		response.Error(c, http.StatusForbidden, "insufficient permissions",
			errors.New("user does not have required role"),
			map[string]interface{}{
				"required_roles": roles,
				"user_roles":     userRoles,
			})
	}
}

// AdminOnly returns Auth + RequireRole("admin").
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole("admin"),
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// browsers cannot set headers on websocket upgrades
	return c.Query("token")
}

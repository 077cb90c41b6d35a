// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetActorID returns the authenticated actor id.
func GetActorID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxActorID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func GetJTI(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxJTI)
	if !exists {
		return "", false
	}
	jti, ok := v.(string)
	return jti, ok
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}
	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}
	return rolesList
}

func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ctxActorID)
	return exists
}

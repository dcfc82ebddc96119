package auth

import (
	"github.com/gin-gonic/gin"

	"uniportal/internal/session"
)

const principalKey = "principal"

// Principal is the resolved identity attached to an authenticated request.
type Principal struct {
	SessionID string
	Role      session.Role
	UserID    int64
	Name      string
}

// PrincipalFrom returns the principal attached by the auth middleware.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

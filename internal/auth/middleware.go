package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"uniportal/internal/session"
)

// HeaderSessionID is the request header carrying the session identifier.
const HeaderSessionID = "X-Session-Id"

// notAuthenticated is the uniform rejection body. The cause (missing header,
// unknown id, closed session) is never disclosed to the caller.
func notAuthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
}

// SessionAuth resolves the X-Session-Id header into a principal via the
// session store. Only active sessions pass; each pass refreshes last-seen.
func SessionAuth(store session.Store, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderSessionID)
		if id == "" {
			notAuthenticated(c)
			return
		}
		sess, err := store.Get(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				log.Warn("session lookup failed", zap.Error(err))
			}
			notAuthenticated(c)
			return
		}
		if !sess.Active() {
			notAuthenticated(c)
			return
		}
		if err := store.Touch(c.Request.Context(), id); err != nil {
			log.Warn("session touch failed", zap.String("session", id), zap.Error(err))
		}
		c.Set(principalKey, Principal{
			SessionID: sess.ID,
			Role:      sess.Role,
			UserID:    sess.UserID,
			Name:      sess.Name,
		})
		c.Next()
	}
}

// RequireRole rejects authenticated requests whose principal has a different role.
func RequireRole(role session.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || p.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

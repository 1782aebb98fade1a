package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aris-project/aris/internal/auth"
	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/models"
)

const (
	// UserIDKey and UserLevelKey carry the authenticated identity through
	// the gin context.
	UserIDKey    = "uid"
	UserLevelKey = "level"
)

// UserID extracts the authenticated user id set by an auth middleware.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// IsAdmin reports whether the authenticated user has the admin level.
func IsAdmin(c *gin.Context) bool {
	v, ok := c.Get(UserLevelKey)
	if !ok {
		return false
	}
	level, ok := v.(int)
	return ok && level > 0
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// JWTRequired authenticates browser sessions. Expired and invalid tokens
// are reported distinctly; a token whose claims cannot be read at all is
// treated as an internal fault.
func JWTRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			common.Unauthorized(c, "Token missing")
			return
		}
		uid, level, err := auth.ParseToken(token, secret)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrTokenExpired):
			common.Unauthorized(c, "Token expired")
			return
		case errors.Is(err, auth.ErrTokenInvalid):
			common.Unauthorized(c, "Invalid token")
			return
		default:
			common.Fail(c, http.StatusInternalServerError, 50000, "Token parse failed")
			c.Abort()
			return
		}
		c.Set(UserIDKey, uid)
		c.Set(UserLevelKey, level)
		c.Next()
	}
}

// Authenticator resolves a presented api-key secret to its live owner.
type Authenticator interface {
	Authenticate(ctx context.Context, secret string) (*models.User, error)
}

// APIKeyRequired authenticates programmatic clients by secret key.
func APIKeyRequired(keys Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := bearerToken(c)
		if secret == "" {
			common.Unauthorized(c, "Invalid secret key")
			return
		}
		u, err := keys.Authenticate(c.Request.Context(), secret)
		if err != nil {
			common.Unauthorized(c, "Invalid secret key")
			return
		}
		level := 0
		if u.IsAdmin {
			level = 1
		}
		c.Set(UserIDKey, u.UID)
		c.Set(UserLevelKey, level)
		c.Next()
	}
}

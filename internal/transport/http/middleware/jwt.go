package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/pkg/jwtutil"
	"chatpdf/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

const bearerPrefix = "Bearer "

// AuthJWT accepts tokens issued by the identity service and exposes the caller's
// id to handlers. Every document route is scoped to that id.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		switch {
		case authHeader == "":
			unauthorized(c, "missing authorization header")
			return
		case !strings.HasPrefix(authHeader, bearerPrefix):
			unauthorized(c, "invalid authorization scheme")
			return
		}

		claims, err := jwtutil.ParseToken(secret, strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix)))
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, message)
	c.Abort()
}

// LimitBody caps the request body so oversized uploads fail while reading
// instead of being buffered to disk.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

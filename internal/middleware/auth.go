package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"timetracker/internal/auth"
)

const userIDKey = "userID"

func UserIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Auth resolves the caller to a user id from either a bearer JWT or an
// anonymous session id. Everything downstream trusts the resolved id;
// credential storage and login live in the auth collaborator, not here.
func Auth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if strings.HasPrefix(strings.ToLower(h), "bearer ") && tokens.Enabled() {
			userID, err := tokens.Verify(strings.TrimSpace(h[7:]))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.Set(userIDKey, userID)
			c.Next()
			return
		}

		if sid := strings.TrimSpace(c.GetHeader("X-Session-ID")); sid != "" {
			// Anonymous sessions live in their own namespace so a session id
			// can never collide with a token subject.
			c.Set(userIDKey, auth.SessionUserID(sid))
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

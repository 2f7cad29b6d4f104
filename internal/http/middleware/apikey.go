package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the shared secret for protected routes.
const HeaderAPIKey = "X-API-Key"

// APIKey rejects requests whose X-API-Key header does not match key with 401.
// The comparison runs in constant time. An empty key disables the check.
func APIKey(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(HeaderAPIKey))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		c.Next()
	}
}

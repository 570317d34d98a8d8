package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/idempotency"
)

const (
	// IdempotencyHeader names the client-chosen key of a mutating call.
	IdempotencyHeader = "Idempotency-Key"

	idempotencyKey = "idempotency_key"
)

// RequireIdempotencyKey rejects mutating requests that carry no usable key.
// Replay and conflict detection happen in the service transaction.
func RequireIdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to mutating methods.
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		switch {
		case key == "":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is required"})
			return
		case len(key) > idempotency.MaxKeyLength:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header is too long"})
			return
		}

		c.Set(idempotencyKey, key)
		c.Header(IdempotencyHeader, key)
		c.Next()
	}
}

// IdempotencyKey returns the key accepted by RequireIdempotencyKey, or the raw header.
func IdempotencyKey(c *gin.Context) string {
	if v, ok := c.Get(idempotencyKey); ok {
		if key, ok := v.(string); ok {
			return key
		}
	}
	return strings.TrimSpace(c.GetHeader(IdempotencyHeader))
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes annotates the nrgin transaction with the caller and
// idempotency key. It must run after nrgin.Middleware and Authenticate.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if p, ok := PrincipalFrom(c); ok {
			txn.AddAttribute("user.id", p.UserID)
			txn.AddAttribute("user.role", string(p.Role))
		}
		if key := IdempotencyKey(c); key != "" {
			txn.AddAttribute("idempotency.key", key)
		}

		c.Next()

		// Record error if present.
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}

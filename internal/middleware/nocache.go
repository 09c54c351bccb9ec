// internal/middleware/nocache.go
package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoCache stops any intermediary from caching the response.
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowListSource supplies the currently allowed client IPs.
// An empty list allows every client.
type AllowListSource interface {
	AllowedIPs() []string
}

// IPAllowList rejects clients whose IP is not in the allow-list.
// The list is read on every request so edits take effect without restart.
func IPAllowList(source AllowListSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !ipAllowed(source.AllowedIPs(), ip) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "forbidden",
				"ip":    ip,
			})
			return
		}
		c.Next()
	}
}

func ipAllowed(allowed []string, ip string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == ip {
			return true
		}
	}
	return false
}

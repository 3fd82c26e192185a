package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zarshamwaleed/edulearn-chat/pkg/log"
)

// RequireIdentity returns a Gin middleware that resolves the request's
// credential through the provider and stores the identity in the context.
func RequireIdentity(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization",
			})
			return
		}

		identity, err := provider.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid credentials",
			})
			return
		}

		c.Set(log.FieldIdentity, identity)
		c.Next()
	}
}

// IdentityFromContext returns the verified identity set by
// RequireIdentity, or empty when the route runs without it.
func IdentityFromContext(c *gin.Context) string {
	if v, exists := c.Get(log.FieldIdentity); exists {
		return v.(string)
	}
	return ""
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lighthouse/pkg/api/common"
)

// ReviewerAuthMiddleware validates the bearer JWT on review/operator
// routes and sets "reviewer_id" and "privileged" in the Gin context, per
// spec.md §4.7's non-privileged-reviewer anonymization rule. Grounded on
// the teacher's pkg/auth.JWTAuthMiddleware, trimmed of the tenant claim
// this single-tenant service has no use for.
func ReviewerAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, common.Fail("no authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, common.Fail("invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := ValidateJWT(parts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, common.Fail(err.Error()))
			c.Abort()
			return
		}

		c.Set("reviewer_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("privileged", claims.Role.Privileged())
		c.Next()
	}
}

// Privileged reports the privilege level ReviewerAuthMiddleware attached
// to the request context.
func Privileged(c *gin.Context) bool {
	v, ok := c.Get("privileged")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

package middleware

import (
	"context"
	"strings"

	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const roleContextKey = "operator_role"

// Principal is the authenticated caller of an admin route.
type Principal struct {
	Name string
	Role string
}

// Authenticator resolves a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (Principal, error)
}

type AuthPolicy struct {
	Mode  string
	Roles []string
}

// AuthMiddleware enforces bearer token validation and role checks. The
// authenticated name replaces any operator taken from headers.
func AuthMiddleware(auth Authenticator, policy AuthPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.ToLower(policy.Mode) == "public" {
			c.Next()
			return
		}
		if auth == nil {
			response.AbortWithErrorCode(c, appErr.ServiceUnavailable, "auth service unavailable")
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(policy.Roles) > 0 && !hasRole(principal.Role, policy.Roles) {
			response.AbortWithErrorCode(c, appErr.Forbidden, "insufficient role")
			return
		}

		c.Set(operatorContextKey, principal.Name)
		c.Set(roleContextKey, principal.Role)
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}

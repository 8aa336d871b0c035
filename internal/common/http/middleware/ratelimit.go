package middleware

import (
	"context"
	"fmt"
	"time"

	"neurojudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Limiter counts hits against a key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) error
}

type RateLimitPolicy struct {
	Window      time.Duration `yaml:"window"`
	OperatorMax int           `yaml:"operatorMax"`
	IPMax       int           `yaml:"ipMax"`
}

// RateLimitMiddleware enforces per-route limits by client ip and by operator.
func RateLimitMiddleware(limiter Limiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := fmt.Sprintf("neurojudge:rate:ip:%s:%s", c.ClientIP(), routeKey)
			if err := limiter.Allow(ctx, key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if policy.OperatorMax > 0 {
			if operator := Operator(c); operator != "" {
				key := fmt.Sprintf("neurojudge:rate:operator:%s:%s", operator, routeKey)
				if err := limiter.Allow(ctx, key, policy.OperatorMax, policy.Window); err != nil {
					response.AbortWithError(c, err)
					return
				}
			}
		}
		c.Next()
	}
}

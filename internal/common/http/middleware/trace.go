package middleware

import (
	"context"
	"strings"

	"neurojudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	operatorHeader  = "X-Operator"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	operatorContextKey  = "operator"
)

type TraceContextConfig struct {
	// AllowOperatorHeader trusts X-Operator for audit logs. AuthMiddleware
	// overrides it with the token subject on protected routes.
	AllowOperatorHeader bool
}

func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{AllowOperatorHeader: true})
}

// TraceContextMiddlewareWithConfig propagates or mints trace and request ids,
// echoing them on the response and into the request context for the logger.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = propagate(ctx, c, traceIDHeader, traceIDContextKey, contextkey.TraceID)
		ctx = propagate(ctx, c, requestIDHeader, requestIDContextKey, contextkey.RequestID)
		c.Request = c.Request.WithContext(ctx)

		if cfg.AllowOperatorHeader {
			if op := strings.TrimSpace(c.GetHeader(operatorHeader)); op != "" {
				c.Set(operatorContextKey, op)
			}
		}
		c.Next()
	}
}

func propagate(ctx context.Context, c *gin.Context, header, ginKey string, ctxKey interface{}) context.Context {
	id := strings.TrimSpace(c.GetHeader(header))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ginKey, id)
	c.Header(header, id)
	return context.WithValue(ctx, ctxKey, id)
}

// Operator is the authenticated subject, or the X-Operator header on open routes.
func Operator(c *gin.Context) string {
	return c.GetString(operatorContextKey)
}

package response

import (
	"net/http"

	"neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope every evaluator endpoint answers with.
type Response struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    interface{}      `json:"data,omitempty"`
	Details interface{}      `json:"details,omitempty"`
	TraceID string           `json:"trace_id,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, "Success", data)
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.Success,
		Message: message,
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Error maps err to its code's HTTP status. Foreign errors become 500s.
func Error(c *gin.Context, err error) {
	e := errors.GetError(err)
	status := e.Code.HTTPStatus()
	fields := []zap.Field{
		zap.Int("code", int(e.Code)),
		zap.Int("status", status),
		zap.String("message", e.Error()),
	}
	var details interface{}
	if len(e.Details) > 0 {
		details = e.Details
		fields = append(fields, zap.Any("details", e.Details))
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", append(fields, zap.String("stack", e.Stack))...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	c.JSON(status, Response{
		Code:    e.Code,
		Message: e.Error(),
		Details: details,
		TraceID: c.GetString("trace_id"),
	})
}

func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// AbortWithErrorCode aborts with code; an empty message uses the code's default.
func AbortWithErrorCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	AbortWithError(c, errors.New(code).WithMessage(message))
}

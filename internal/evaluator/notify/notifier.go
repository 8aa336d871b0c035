// Package notify reports lifecycle outcomes back to submitters.
package notify

import (
	"context"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Notifier delivers a message about a submission.
type Notifier interface {
	Post(ctx context.Context, sub model.Submission, message string) error
}

// Dispatcher logs every message and, when enabled, forwards it to each
// channel. Delivery failures are logged and never returned.
type Dispatcher struct {
	enabled  bool
	channels []Notifier
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(enabled bool, channels ...Notifier) *Dispatcher {
	return &Dispatcher{enabled: enabled, channels: channels}
}

func (d *Dispatcher) Post(ctx context.Context, sub model.Submission, message string) error {
	logger.Info(ctx, "notification",
		zap.Int64("submission_id", sub.ID),
		zap.String("login", sub.Login),
		zap.String("message", message),
		zap.Bool("delivered", d.enabled && len(d.channels) > 0),
	)
	if !d.enabled {
		return nil
	}
	for _, ch := range d.channels {
		if err := ch.Post(ctx, sub, message); err != nil {
			logger.Warn(ctx, "notification delivery failed",
				zap.Int64("submission_id", sub.ID),
				zap.Int("code", int(appErr.GetCode(err))),
				zap.Error(err),
			)
		}
	}
	return nil
}

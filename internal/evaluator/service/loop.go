package service

import (
	"context"
	"time"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/telemetry"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Lister returns the current open submissions.
type Lister interface {
	ListSubmissions(ctx context.Context) ([]model.Submission, error)
}

type processing interface {
	Process(ctx context.Context, sub model.Submission) (string, error)
}

// LoopConfig controls polling.
type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
	LockKey  string        `yaml:"lockKey"`
	LockTTL  time.Duration `yaml:"lockTTL"`
	Once     bool          `yaml:"once"`
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.LockKey == "" {
		c.LockKey = "neurojudge:loop:lock"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}

// Loop polls the submission source and processes every submission in turn.
type Loop struct {
	cfg       LoopConfig
	lister    Lister
	processor processing
	lock      cache.LockOps
}

// NewLoop creates a loop. lock may be nil when a single evaluator runs.
func NewLoop(cfg LoopConfig, lister Lister, p *Processor, lock cache.LockOps) *Loop {
	return &Loop{cfg: cfg.withDefaults(), lister: lister, processor: p, lock: lock}
}

// Run polls until ctx is done or a fatal error occurs.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := l.RunOnce(ctx); err != nil {
			if appErr.IsFatal(err) {
				telemetry.ObserveLoop(telemetry.OutcomeError)
				return err
			}
			telemetry.ObserveLoop(telemetry.OutcomeFailure)
			logger.Error(ctx, "evaluation pass failed", zap.Error(err))
		} else {
			telemetry.ObserveLoop(telemetry.OutcomeSuccess)
		}
		if l.cfg.Once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes every listed submission once. Per-submission failures are
// logged and the pass continues; fatal errors stop it.
func (l *Loop) RunOnce(ctx context.Context) error {
	if l.lock != nil {
		held, err := l.lock.TryLock(ctx, l.cfg.LockKey, l.cfg.LockTTL)
		if err != nil {
			return appErr.Wrap(err, appErr.LockFailed)
		}
		if !held {
			logger.Info(ctx, "evaluation pass skipped, lock held elsewhere", zap.String("key", l.cfg.LockKey))
			return nil
		}
		defer func() {
			if err := l.lock.Unlock(context.WithoutCancel(ctx), l.cfg.LockKey); err != nil {
				logger.Warn(ctx, "release loop lock failed", zap.Error(err))
			}
		}()
	}

	subs, err := l.lister.ListSubmissions(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "evaluation pass started", zap.Int("submissions", len(subs)))

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil
		}
		action, err := l.processor.Process(ctx, sub)
		if err != nil {
			if appErr.IsFatal(err) {
				return err
			}
			logger.Error(ctx, "submission pass failed",
				zap.Int64("submission_id", sub.ID),
				zap.String("login", sub.Login),
				zap.Int("code", int(appErr.GetCode(err))),
				zap.Error(err),
			)
		} else {
			logger.Debug(ctx, "submission pass finished", zap.Int64("submission_id", sub.ID), zap.String("action", action))
		}
		if l.lock != nil {
			if err := l.lock.ExtendLock(ctx, l.cfg.LockKey, l.cfg.LockTTL); err != nil {
				logger.Warn(ctx, "extend loop lock failed", zap.Error(err))
			}
		}
	}
	return nil
}

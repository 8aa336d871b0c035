package service

import (
	"context"

	"neurojudge/internal/evaluator/metrics"
	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/telemetry"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Pass actions.
const (
	ActionSkipped   = "skipped"
	ActionValidated = "validated"
	ActionRejected  = "rejected"
	ActionExecuted  = "executed"
)

type validation interface {
	Validate(ctx context.Context, sub model.Submission) (bool, string, error)
}

type execution interface {
	Execute(ctx context.Context, sub model.Submission) (metrics.Metrics, model.Info, error)
}

// Processor runs one pass over a single submission.
type Processor struct {
	store     StatusStore
	validator validation
	executor  execution
}

// NewProcessor creates a processor.
func NewProcessor(store StatusStore, v *Validator, e *Executor) *Processor {
	return &Processor{store: store, validator: v, executor: e}
}

// Process ensures sub has a status record and, when it changed since the last
// check, validates it and executes it if it passed and was never executed.
// last_checked advances after every validation attempt so an unchanged
// submission is not revisited.
func (p *Processor) Process(ctx context.Context, sub model.Submission) (string, error) {
	ctx = logger.WithSubmission(ctx, sub.ID)
	if err := p.store.EnsureEntry(ctx, sub); err != nil {
		return "", err
	}
	recent, err := IsRecent(ctx, p.store, sub)
	if err != nil {
		return "", err
	}
	if !recent {
		telemetry.ObservePass(ActionSkipped)
		return ActionSkipped, nil
	}

	ok, _, verr := p.validator.Validate(ctx, sub)
	if err := p.store.TouchLastChecked(ctx, sub.ID); err != nil {
		return "", err
	}
	if verr != nil {
		return "", verr
	}
	if !ok {
		telemetry.ObservePass(ActionRejected)
		return ActionRejected, nil
	}

	executed, err := p.store.GetStatus(ctx, sub.ID, model.FlagExecuted)
	if err != nil {
		return "", err
	}
	if executed {
		logger.Info(ctx, "submission already executed", zap.String("login", sub.Login))
		telemetry.ObservePass(ActionValidated)
		return ActionValidated, nil
	}

	if _, _, err := p.executor.Execute(ctx, sub); err != nil {
		return "", err
	}
	telemetry.ObservePass(ActionExecuted)
	return ActionExecuted, nil
}

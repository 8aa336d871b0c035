package service

import (
	"context"
	"os"
	"sync"
	"time"

	"neurojudge/internal/evaluator/engine"
	"neurojudge/internal/evaluator/loader"
	"neurojudge/internal/evaluator/metrics"
	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/notify"
	"neurojudge/internal/evaluator/telemetry"
	"neurojudge/internal/evaluator/vcs"
	"neurojudge/internal/evaluator/workspace"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultDatasets are the benchmark datasets scored for every submission.
var DefaultDatasets = []string{"00.00", "00.01"}

// ExecutorConfig selects the engine session and datasets used for execution.
type ExecutorConfig struct {
	Master   string   `yaml:"master"`
	App      string   `yaml:"app"`
	Datasets []string `yaml:"datasets"`
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.App == "" {
		c.App = "neurofinder"
	}
	if len(c.Datasets) == 0 {
		c.Datasets = DefaultDatasets
	}
	return c
}

// Executor runs a validated submission against every dataset, scores it and
// publishes the results.
type Executor struct {
	cfg       ExecutorConfig
	vcs       vcs.Materializer
	loader    loader.Loader
	engine    engine.Engine
	publisher *Publisher
	store     StatusStore
	notifier  notify.Notifier
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig, m vcs.Materializer, l loader.Loader, e engine.Engine,
	p *Publisher, store StatusStore, n notify.Notifier) *Executor {
	return &Executor{
		cfg:       cfg.withDefaults(),
		vcs:       m,
		loader:    l,
		engine:    e,
		publisher: p,
		store:     store,
		notifier:  n,
	}
}

// Execute scores sub. Failures of the submission itself are posted as
// "Execution failed" and return nil metrics without an error; the returned
// error is reserved for failures to set up the run, status store faults and
// cancellation.
func (e *Executor) Execute(ctx context.Context, sub model.Submission) (result metrics.Metrics, info model.Info, err error) {
	ctx = logger.WithPhase(logger.WithSubmission(ctx, sub.ID), phaseExecute)
	start := time.Now()
	defer func() {
		outcome := telemetry.OutcomeSuccess
		switch {
		case err != nil:
			outcome = telemetry.OutcomeError
		case result == nil:
			outcome = telemetry.OutcomeFailure
		}
		telemetry.ObservePhase(phaseExecute, outcome, time.Since(start).Seconds())
	}()

	dir, err := e.vcs.Materialize(ctx, sub.SourceURL, sub.Branch)
	if err != nil {
		return nil, model.Info{}, err
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn(ctx, "remove checkout failed", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	layout := workspace.Resolve(dir, sub.Login)
	info, err = layout.ReadInfo()
	if err != nil {
		return nil, model.Info{}, err
	}

	session, err := e.engine.Start(ctx, e.cfg.Master, e.cfg.App)
	if err != nil {
		return nil, info, err
	}
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			if err := session.Stop(); err != nil {
				logger.Warn(ctx, "stop engine session failed", zap.Error(err))
			}
		})
	}
	defer stop()

	m, runErr := e.run(ctx, sub, layout, session)
	stop()
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, info, ctx.Err()
		}
		logger.Error(ctx, "execution failed",
			zap.Int("code", int(appErr.GetCode(runErr))),
			zap.Error(runErr),
		)
		e.post(ctx, sub, MessageExecutionFailed)
		return nil, info, nil
	}

	if err := e.publisher.Results(ctx, sub, info, m); err != nil {
		logger.Error(ctx, "publish results failed", zap.Error(err))
		e.post(ctx, sub, MessageExecutionFailed)
		return nil, info, nil
	}
	if err := e.store.MarkStatus(ctx, sub.ID, model.FlagExecuted); err != nil {
		e.post(ctx, sub, MessageExecutionFailed)
		return nil, info, err
	}

	for _, name := range metrics.Names {
		if v, ok := m.Overall(name); ok {
			telemetry.ObserveScore(name, v)
		}
	}
	logger.Info(ctx, "execution finished", zap.Strings("datasets", e.cfg.Datasets))
	e.post(ctx, sub, MessageExecutionSucceeded)
	return m, info, nil
}

// run scores every dataset in order and publishes each mask image. The first
// failure aborts the whole run.
func (e *Executor) run(ctx context.Context, sub model.Submission, layout workspace.Layout, session engine.Session) (metrics.Metrics, error) {
	entry, err := e.loader.Load(ctx, layout.Module)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	for _, name := range e.cfg.Datasets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		images, err := session.LoadImages(ctx, name)
		if err != nil {
			return nil, err
		}
		truth, err := session.LoadGroundTruth(ctx, name)
		if err != nil {
			return nil, err
		}
		found, err := entry.Run(ctx, images.Dir)
		if err != nil {
			return nil, err
		}
		dinfo, err := session.LoadInfo(ctx, name)
		if err != nil {
			return nil, err
		}

		score := metrics.Compute(truth, found)
		m.AppendScore(name, dinfo.JoinedContributors(), score)
		logger.Info(ctx, "dataset scored",
			zap.String("dataset", name),
			zap.Int("truth", truth.Count()),
			zap.Int("found", found.Count()),
			zap.Float64("accuracy", score.Accuracy),
		)

		base, ok := images.Mean()
		if !ok {
			return nil, appErr.Newf(appErr.DatasetCorrupted, "dataset %s has no frames", name)
		}
		if err := e.publisher.Image(ctx, sub.ID, name, found.Masks(base)); err != nil {
			return nil, err
		}
	}
	m.Finalize()
	return m, nil
}

func (e *Executor) post(ctx context.Context, sub model.Submission, message string) {
	if err := e.notifier.Post(ctx, sub, message); err != nil {
		logger.Warn(ctx, "post execution outcome failed", zap.Error(err))
	}
}

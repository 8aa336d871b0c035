// Package engine provides execution sessions over the benchmark datasets.
package engine

import (
	"context"

	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/regions"
)

// Images is one dataset's image stack, materialized locally.
type Images struct {
	Name   string
	Dir    string
	Frames []regions.Frame
}

// Mean averages the stack into a single frame.
func (i Images) Mean() (regions.Frame, bool) {
	return regions.MeanFrame(i.Frames)
}

// Session gives access to datasets until stopped.
type Session interface {
	LoadImages(ctx context.Context, dataset string) (Images, error)
	LoadGroundTruth(ctx context.Context, dataset string) (regions.Set, error)
	LoadInfo(ctx context.Context, dataset string) (model.Info, error)
	// Stop releases the session. Calling it more than once is a no-op.
	Stop() error
}

// Engine starts sessions.
type Engine interface {
	Start(ctx context.Context, master, app string) (Session, error)
}

//go:build !linux

package sandbox

import (
	"context"
	"fmt"
)

type stubRunner struct{}

func NewRunner(cfg Config) (Runner, error) {
	return &stubRunner{}, nil
}

func (s *stubRunner) Run(ctx context.Context, spec RunSpec) (Result, error) {
	return Result{}, fmt.Errorf("sandbox runner is only supported on linux")
}

// Package vcs fetches submission code from version control.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Materializer produces a local checkout of a branch.
type Materializer interface {
	Materialize(ctx context.Context, url, branch string) (string, error)
}

// GitConfig configures the git client.
type GitConfig struct {
	Binary  string        `yaml:"binary"`
	TempDir string        `yaml:"tempDir"`
	Timeout time.Duration `yaml:"timeout"`
}

// GitMaterializer clones with the git command line.
type GitMaterializer struct {
	binary  string
	tempDir string
	timeout time.Duration
}

// NewGitMaterializer creates a materializer with defaults applied.
func NewGitMaterializer(cfg GitConfig) *GitMaterializer {
	if cfg.Binary == "" {
		cfg.Binary = "git"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &GitMaterializer{binary: cfg.Binary, tempDir: cfg.TempDir, timeout: cfg.Timeout}
}

// Materialize clones url into a fresh temporary directory and checks out
// branch from origin. The caller owns the returned directory.
func (g *GitMaterializer) Materialize(ctx context.Context, url, branch string) (string, error) {
	dir, err := os.MkdirTemp(g.tempDir, "neurojudge-checkout-")
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SubmissionMaterializeFailed, "create checkout dir failed")
	}

	if err := g.run(ctx, dir, "clone", "--quiet", url, "."); err != nil {
		os.RemoveAll(dir)
		return "", appErr.Wrapf(err, appErr.SubmissionMaterializeFailed, "clone %s failed", url)
	}
	if err := g.run(ctx, dir, "checkout", "--quiet", "-B", branch, "origin/"+branch); err != nil {
		os.RemoveAll(dir)
		return "", appErr.Wrapf(err, appErr.SubmissionMaterializeFailed, "checkout %s failed", branch)
	}

	logger.Debug(ctx, "materialized submission", zap.String("url", url), zap.String("branch", branch), zap.String("dir", dir))
	return dir, nil
}

func (g *GitMaterializer) run(ctx context.Context, dir string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("git %s: timeout after %v", args[0], g.timeout)
		}
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

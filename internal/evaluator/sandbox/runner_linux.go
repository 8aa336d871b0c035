//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

type linuxRunner struct {
	cfg Config
}

// NewRunner creates a process runner. When a helper is configured the
// command is started through it so rlimits and seccomp apply.
func NewRunner(cfg Config) (Runner, error) {
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath != "" {
		if _, err := exec.LookPath(cfg.HelperPath); err != nil {
			return nil, fmt.Errorf("resolve sandbox helper: %w", err)
		}
	}
	return &linuxRunner{cfg: cfg}, nil
}

func (r *linuxRunner) Run(ctx context.Context, spec RunSpec) (Result, error) {
	if err := validateRunSpec(spec); err != nil {
		return Result{}, err
	}
	spec = r.cfg.withDefaults(spec)

	cmd, err := r.command(spec)
	if err != nil {
		return Result{}, err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	var helperStderr bytes.Buffer
	if r.cfg.HelperPath == "" {
		stdout, stderr, closeFiles, err := openOutputs(spec)
		if err != nil {
			return Result{}, err
		}
		defer closeFiles()
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	} else {
		cmd.Stderr = &helperStderr
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start process: %w", err)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if spec.Limits.WallTimeMs > 0 {
			wallTimer = time.After(time.Duration(spec.Limits.WallTimeMs) * time.Millisecond)
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper failed", zap.String("stderr", helperStderr.String()))
	}

	res := Result{
		ExitCode:   exitCodeFromErr(waitErr, cmd.ProcessState),
		WallTimeMs: time.Since(start).Milliseconds(),
		Stdout:     readLimitedFile(spec.StdoutPath, r.cfg.StdoutStderrMaxBytes),
		Stderr:     readLimitedFile(spec.StderrPath, r.cfg.StdoutStderrMaxBytes),
		TimedOut:   timedOut.Load(),
	}
	if res.TimedOut || ctx.Err() != nil {
		res.ExitCode = -1
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (r *linuxRunner) command(spec RunSpec) (*exec.Cmd, error) {
	if r.cfg.HelperPath == "" {
		cmd := exec.Command(spec.Cmd[0], spec.Cmd[1:]...)
		cmd.Dir = spec.WorkDir
		cmd.Env = spec.Env
		return cmd, nil
	}

	req := InitRequest{RunSpec: spec}
	if r.cfg.EnableSeccomp {
		req.Seccomp = r.cfg.SeccompProfile
	}
	stdin, err := jsonToPipe(req)
	if err != nil {
		return nil, fmt.Errorf("encode init request: %w", err)
	}
	cmd := exec.Command(r.cfg.HelperPath)
	cmd.Stdin = stdin
	return cmd, nil
}

func openOutputs(spec RunSpec) (io.Writer, io.Writer, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	open := func(path string) (io.Writer, error) {
		if path == "" {
			return io.Discard, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		return f, nil
	}
	stdout, err := open(spec.StdoutPath)
	if err != nil {
		return nil, nil, closeAll, fmt.Errorf("open stdout: %w", err)
	}
	stderr, err := open(spec.StderrPath)
	if err != nil {
		closeAll()
		return nil, nil, func() {}, fmt.Errorf("open stderr: %w", err)
	}
	return stdout, stderr, closeAll, nil
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func jsonToPipe(req InitRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		err := json.NewEncoder(writer).Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

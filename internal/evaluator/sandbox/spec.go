// Package sandbox runs untrusted submission processes.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// ResourceLimit describes hard limits applied to the process.
// Zero means unlimited.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs" json:"cpuTimeMs,omitempty"`
	WallTimeMs int64 `yaml:"wallTimeMs" json:"wallTimeMs,omitempty"`
	MemoryMB   int64 `yaml:"memoryMB" json:"memoryMB,omitempty"`
	StackMB    int64 `yaml:"stackMB" json:"stackMB,omitempty"`
	OutputMB   int64 `yaml:"outputMB" json:"outputMB,omitempty"`
	PIDs       int64 `yaml:"pids" json:"pids,omitempty"`
}

// RunSpec describes one process invocation.
type RunSpec struct {
	WorkDir    string        `json:"workDir"`
	Cmd        []string      `json:"cmd"`
	Env        []string      `json:"env,omitempty"`
	StdoutPath string        `json:"stdoutPath,omitempty"`
	StderrPath string        `json:"stderrPath,omitempty"`
	Limits     ResourceLimit `json:"limits"`
}

// Result captures the outcome of a process.
type Result struct {
	ExitCode   int
	WallTimeMs int64
	Stdout     string
	Stderr     string
	TimedOut   bool
}

// Runner executes a RunSpec.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (Result, error)
}

// Config controls the runner.
type Config struct {
	// HelperPath is the sandbox-init binary. Empty runs commands directly.
	HelperPath           string        `yaml:"helperPath"`
	SeccompProfile       string        `yaml:"seccompProfile"`
	EnableSeccomp        bool          `yaml:"enableSeccomp"`
	StdoutStderrMaxBytes int64         `yaml:"stdoutStderrMaxBytes"`
	WallTimeout          time.Duration `yaml:"wallTimeout"`
	Limits               ResourceLimit `yaml:"limits"`
}

const defaultStdoutStderrMaxBytes int64 = 64 * 1024

func validateRunSpec(spec RunSpec) error {
	if spec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(spec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	return nil
}

// withDefaults fills unset limits from the runner configuration.
func (c Config) withDefaults(spec RunSpec) RunSpec {
	if spec.Limits == (ResourceLimit{}) {
		spec.Limits = c.Limits
	}
	if spec.Limits.WallTimeMs == 0 && c.WallTimeout > 0 {
		spec.Limits.WallTimeMs = c.WallTimeout.Milliseconds()
	}
	return spec
}

// InitRequest is written as JSON to the sandbox-init helper's stdin.
type InitRequest struct {
	RunSpec RunSpec `json:"runSpec"`
	// Seccomp is a profile path; empty loads no filter.
	Seccomp string `json:"seccomp,omitempty"`
}

// Validate is shared by the runner and the helper.
func (r InitRequest) Validate() error {
	return validateRunSpec(r.RunSpec)
}

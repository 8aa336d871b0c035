package loader

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"neurojudge/internal/evaluator/sandbox"
	appErr "neurojudge/pkg/errors"
)

// fakeRunner records specs and writes canned output for harness runs.
type fakeRunner struct {
	specs  []sandbox.RunSpec
	result sandbox.Result
	err    error
	output string
}

func (f *fakeRunner) Run(ctx context.Context, spec sandbox.RunSpec) (sandbox.Result, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return sandbox.Result{}, f.err
	}
	if len(spec.Cmd) == 5 && f.output != "" {
		if err := os.WriteFile(spec.Cmd[4], []byte(f.output), 0o644); err != nil {
			return sandbox.Result{}, err
		}
	}
	return f.result, nil
}

func TestProcessLoader_Probe(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		wantCode appErr.ErrorCode
	}{
		{name: "imports", runner: &fakeRunner{}},
		{name: "import error", runner: &fakeRunner{result: sandbox.Result{ExitCode: 1, Stderr: "ImportError"}}, wantCode: appErr.EntryPointLoadFailed},
		{name: "runner error", runner: &fakeRunner{err: errors.New("exec failed")}, wantCode: appErr.SandboxError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewProcessLoader(tt.runner, Config{ScratchDir: t.TempDir()})
			err := l.Probe(context.Background(), "/work/submissions/alice/run")
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Probe() error = %v", err)
				}
			} else if !appErr.Is(err, tt.wantCode) {
				t.Fatalf("Probe() error = %v, want code %d", err, tt.wantCode)
			}
			spec := tt.runner.specs[0]
			if spec.WorkDir != "/work/submissions/alice/run" {
				t.Errorf("WorkDir = %q", spec.WorkDir)
			}
			if spec.Cmd[0] != "python3" || spec.Cmd[2] != probeScript {
				t.Errorf("Cmd = %v", spec.Cmd)
			}
		})
	}
}

func TestProcessLoader_InterpreterCommandLine(t *testing.T) {
	r := &fakeRunner{}
	l := NewProcessLoader(r, Config{Interpreter: `conda run -n "neuro env" python`, ScratchDir: t.TempDir()})
	if err := l.Probe(context.Background(), "/work/run"); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	want := []string{"conda", "run", "-n", "neuro env", "python", "-c", probeScript}
	if got := r.specs[0].Cmd; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Cmd = %q, want %q", got, want)
	}

	if _, err := (Config{Interpreter: `python "unterminated`}).Command(); !appErr.IsFatal(err) {
		t.Fatalf("Command() error = %v, want configuration error", err)
	}
}

func TestProcessLoader_LoadRejectsRelative(t *testing.T) {
	l := NewProcessLoader(&fakeRunner{}, Config{})
	if _, err := l.Load(context.Background(), "submissions/alice/run"); !appErr.Is(err, appErr.EntryPointLoadFailed) {
		t.Fatalf("Load() error = %v, want EntryPointLoadFailed", err)
	}
}

func TestEntryPoint_Run(t *testing.T) {
	r := &fakeRunner{output: `[{"coordinates": [[1, 2], [3, 4]]}]`}
	l := NewProcessLoader(r, Config{Interpreter: "/usr/bin/python3", ScratchDir: t.TempDir()})
	ep, err := l.Load(context.Background(), "/work/run")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	set, err := ep.Run(context.Background(), "/data/00.00/images")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if set.Count() != 1 || len(set[0].Coordinates) != 2 {
		t.Errorf("Run() = %+v", set)
	}
	spec := r.specs[len(r.specs)-1]
	if spec.Cmd[0] != "/usr/bin/python3" || spec.Cmd[3] != "/data/00.00/images" {
		t.Errorf("Cmd = %v", spec.Cmd)
	}
}

func TestEntryPoint_RunFailures(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		wantCode appErr.ErrorCode
	}{
		{"non-zero exit", &fakeRunner{result: sandbox.Result{ExitCode: 1, Stderr: "Traceback"}}, appErr.EntryPointRunFailed},
		{"timeout", &fakeRunner{result: sandbox.Result{ExitCode: -1, TimedOut: true}}, appErr.TimeLimitExceeded},
		{"no output", &fakeRunner{}, appErr.EntryPointRunFailed},
		{"bad output", &fakeRunner{output: `{"coordinates": 1}`}, appErr.EntryPointRunFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewProcessLoader(tt.runner, Config{ScratchDir: t.TempDir()})
			ep := &processEntryPoint{loader: l, moduleDir: "/work/run"}
			if _, err := ep.Run(context.Background(), "/data/images"); !appErr.Is(err, tt.wantCode) {
				t.Fatalf("Run() error = %v, want code %d", err, tt.wantCode)
			}
		})
	}
}

func TestTail(t *testing.T) {
	long := strings.Repeat("x", maxTail+10)
	if got := tail(long); len(got) != maxTail+3 || !strings.HasPrefix(got, "...") {
		t.Errorf("tail() length = %d", len(got))
	}
	if got := tail("  short \n"); got != "short" {
		t.Errorf("tail() = %q", got)
	}
}

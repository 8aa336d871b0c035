// Package loader loads and invokes a submission's entry point in a separate
// process.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"neurojudge/internal/evaluator/regions"
	"neurojudge/internal/evaluator/sandbox"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// EntryPoint is a loaded submission algorithm.
type EntryPoint interface {
	// Run hands the dataset's image directory to the algorithm and returns
	// the sources it detected.
	Run(ctx context.Context, imagesDir string) (regions.Set, error)
}

// Loader resolves the entry point inside a submission module directory.
type Loader interface {
	// Probe checks that the module imports cleanly.
	Probe(ctx context.Context, moduleDir string) error
	Load(ctx context.Context, moduleDir string) (EntryPoint, error)
}

// Config selects the interpreter used for submissions. Interpreter is a
// shell-style command line, e.g. "conda run -n neuro python".
type Config struct {
	Interpreter string   `yaml:"interpreter"`
	Env         []string `yaml:"env"`
	ScratchDir  string   `yaml:"scratchDir"`
}

// Command splits Interpreter into argv.
func (c Config) Command() ([]string, error) {
	argv, err := shlex.Split(c.Interpreter)
	if err != nil {
		return nil, appErr.ConfigError("loader.interpreter", err.Error())
	}
	if len(argv) == 0 {
		return nil, appErr.ConfigError("loader.interpreter", "empty command")
	}
	return argv, nil
}

// probeScript imports the module the same way the harness does.
const probeScript = "import run"

// harnessScript calls run.run with the sorted image paths and writes the
// returned sources as JSON. Sources may be dicts with a "coordinates" key,
// objects with a coordinates attribute, or bare coordinate lists.
const harnessScript = `import glob, json, os, sys
import run

def coords(s):
    if isinstance(s, dict):
        c = s["coordinates"]
    else:
        c = getattr(s, "coordinates", s)
    return [[float(p[0]), float(p[1])] for p in c]

paths = sorted(glob.glob(os.path.join(sys.argv[1], "*")))
found = run.run(paths)
with open(sys.argv[2], "w") as f:
    json.dump([{"coordinates": coords(s)} for s in found], f)
`

// ProcessLoader runs submissions with an external interpreter through a
// sandbox runner.
type ProcessLoader struct {
	runner sandbox.Runner
	cfg    Config
	argv   []string
}

// NewProcessLoader creates a loader with defaults applied.
func NewProcessLoader(runner sandbox.Runner, cfg Config) *ProcessLoader {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	argv, err := cfg.Command()
	if err != nil {
		argv = []string{cfg.Interpreter}
	}
	return &ProcessLoader{runner: runner, cfg: cfg, argv: argv}
}

func (l *ProcessLoader) Probe(ctx context.Context, moduleDir string) error {
	scratch, err := os.MkdirTemp(l.cfg.ScratchDir, "neurojudge-probe-")
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxError, "create scratch dir failed")
	}
	defer os.RemoveAll(scratch)

	res, err := l.runner.Run(ctx, l.spec(moduleDir, scratch, probeScript))
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxError, "probe %s failed", moduleDir)
	}
	if res.ExitCode != 0 {
		return appErr.Newf(appErr.EntryPointLoadFailed, "cannot import run from %s", moduleDir).
			WithDetail("stderr", tail(res.Stderr))
	}
	return nil
}

func (l *ProcessLoader) Load(ctx context.Context, moduleDir string) (EntryPoint, error) {
	if !filepath.IsAbs(moduleDir) {
		return nil, appErr.Newf(appErr.EntryPointLoadFailed, "module dir must be absolute: %s", moduleDir)
	}
	if err := l.Probe(ctx, moduleDir); err != nil {
		return nil, err
	}
	return &processEntryPoint{loader: l, moduleDir: moduleDir}, nil
}

func (l *ProcessLoader) spec(moduleDir, scratch, script string, args ...string) sandbox.RunSpec {
	cmd := append(append([]string{}, l.argv...), "-c", script)
	cmd = append(cmd, args...)
	return sandbox.RunSpec{
		WorkDir:    moduleDir,
		Cmd:        cmd,
		Env:        l.cfg.Env,
		StdoutPath: filepath.Join(scratch, "stdout"),
		StderrPath: filepath.Join(scratch, "stderr"),
	}
}

type processEntryPoint struct {
	loader    *ProcessLoader
	moduleDir string
}

func (p *processEntryPoint) Run(ctx context.Context, imagesDir string) (regions.Set, error) {
	scratch, err := os.MkdirTemp(p.loader.cfg.ScratchDir, "neurojudge-run-")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "create scratch dir failed")
	}
	defer os.RemoveAll(scratch)

	out := filepath.Join(scratch, "sources.json")
	spec := p.loader.spec(p.moduleDir, scratch, harnessScript, imagesDir, out)
	res, err := p.loader.runner.Run(ctx, spec)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxError, "run entry point failed")
	}
	if res.TimedOut {
		return nil, appErr.Newf(appErr.TimeLimitExceeded, "entry point exceeded wall time after %dms", res.WallTimeMs)
	}
	if res.ExitCode != 0 {
		logger.Warn(ctx, "entry point exited with error",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", tail(res.Stderr)),
		)
		return nil, appErr.Newf(appErr.EntryPointRunFailed, "entry point exited with code %d", res.ExitCode).
			WithDetail("stderr", tail(res.Stderr))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EntryPointRunFailed, "entry point produced no output")
	}
	set, err := regions.ParseSet(data)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.EntryPointRunFailed, "entry point output is invalid")
	}
	logger.Debug(ctx, "entry point finished", zap.Int("sources", set.Count()), zap.Int64("wall_ms", res.WallTimeMs))
	return set, nil
}

const maxTail = 2048

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxTail {
		return s
	}
	return fmt.Sprintf("...%s", s[len(s)-maxTail:])
}

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/regions"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	imagesDir       = "images"
	sourcesFile     = "sources/sources.json"
	datasetInfoFile = "info.json"
)

// DatasetSource resolves a dataset name to a local directory.
type DatasetSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// LocalEngine runs sessions in this process. Datasets are materialized by
// the DatasetSource; home only anchors the engine and must be absolute.
type LocalEngine struct {
	home     string
	datasets DatasetSource
}

// NewLocalEngine creates an engine rooted at home.
func NewLocalEngine(home string, datasets DatasetSource) (*LocalEngine, error) {
	if home == "" {
		return nil, appErr.New(appErr.MissingEngineHome)
	}
	if !filepath.IsAbs(home) {
		return nil, appErr.ConfigError("engine.home", "must be an absolute path")
	}
	return &LocalEngine{home: home, datasets: datasets}, nil
}

var localMaster = regexp.MustCompile(`^local(\[(\*|[1-9][0-9]*)\])?$`)

// ValidateMaster reports whether master is a form this engine can run.
// Every failure is fatal.
func ValidateMaster(master string) error {
	_, err := parseMaster(master)
	return err
}

// parseMaster accepts local, local[N] and local[*], returning the number of
// decode workers.
func parseMaster(master string) (int, error) {
	if master == "" {
		return 0, appErr.New(appErr.MissingMaster)
	}
	m := localMaster.FindStringSubmatch(master)
	if m == nil {
		return 0, appErr.ConfigError("engine.master",
			fmt.Sprintf("unsupported master %q, want local, local[N] or local[*]", master))
	}
	switch m[2] {
	case "":
		return 1, nil
	case "*":
		return runtime.NumCPU(), nil
	default:
		n, _ := strconv.Atoi(m[2])
		return n, nil
	}
}

func (e *LocalEngine) Start(ctx context.Context, master, app string) (Session, error) {
	workers, err := parseMaster(master)
	if err != nil {
		return nil, err
	}
	if app == "" {
		app = "neurojudge"
	}
	id := uuid.NewString()
	logger.Info(ctx, "engine session started",
		zap.String("master", master),
		zap.String("app", app),
		zap.String("session_id", id),
	)
	return &localSession{
		id:       id,
		workers:  workers,
		datasets: e.datasets,
	}, nil
}

type localSession struct {
	id       string
	workers  int
	datasets DatasetSource

	mu      sync.Mutex
	stopped bool
}

func (s *localSession) dataset(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return "", appErr.New(appErr.EngineStopped)
	}
	dir, err := s.datasets.Get(ctx, name)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DatasetLoadFailed, "load dataset %s failed", name)
	}
	return dir, nil
}

func (s *localSession) LoadImages(ctx context.Context, name string) (Images, error) {
	dir, err := s.dataset(ctx, name)
	if err != nil {
		return Images{}, err
	}
	imgDir := filepath.Join(dir, imagesDir)
	paths, err := listFrames(imgDir)
	if err != nil {
		return Images{}, appErr.Wrapf(err, appErr.DatasetLoadFailed, "list images of %s failed", name)
	}
	if len(paths) == 0 {
		return Images{}, appErr.Newf(appErr.DatasetCorrupted, "dataset %s has no images", name)
	}
	frames, err := decodeFrames(ctx, paths, s.workers)
	if err != nil {
		return Images{}, err
	}
	return Images{Name: name, Dir: imgDir, Frames: frames}, nil
}

func (s *localSession) LoadGroundTruth(ctx context.Context, name string) (regions.Set, error) {
	dir, err := s.dataset(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(sourcesFile)))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.GroundTruthInvalid, "read ground truth of %s failed", name)
	}
	set, err := regions.ParseSet(data)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.GroundTruthInvalid, "parse ground truth of %s failed", name)
	}
	return set, nil
}

func (s *localSession) LoadInfo(ctx context.Context, name string) (model.Info, error) {
	dir, err := s.dataset(ctx, name)
	if err != nil {
		return model.Info{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, datasetInfoFile))
	if err != nil {
		return model.Info{}, appErr.Wrapf(err, appErr.DatasetLoadFailed, "read info of %s failed", name)
	}
	info, err := model.ParseInfo(data)
	if err != nil {
		return model.Info{}, appErr.Wrapf(err, appErr.DatasetCorrupted, "parse info of %s failed", name)
	}
	if err := info.RequireContributors(); err != nil {
		return model.Info{}, appErr.Wrapf(err, appErr.DatasetCorrupted, "info of %s", name)
	}
	return info, nil
}

func (s *localSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	return nil
}

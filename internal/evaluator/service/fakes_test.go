package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"neurojudge/internal/evaluator/engine"
	"neurojudge/internal/evaluator/loader"
	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/regions"
	"neurojudge/internal/evaluator/repository"
	appErr "neurojudge/pkg/errors"
)

// fakeCheckout materializes a fixed file tree into a fresh directory.
type fakeCheckout struct {
	t     *testing.T
	files map[string]string
	err   error
	dirs  []string
}

func (f *fakeCheckout) Materialize(ctx context.Context, url, branch string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	dir, err := os.MkdirTemp(f.t.TempDir(), "checkout-")
	if err != nil {
		return "", err
	}
	for rel, content := range f.files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	f.dirs = append(f.dirs, dir)
	return dir, nil
}

func validTree(login string) map[string]string {
	root := "submissions/" + login
	return map[string]string{
		root + "/info.json":       `{"algorithm":"cnmf","contributors":["Ada","Grace"]}`,
		root + "/run/run.py":      "def run(paths):\n    return []\n",
		root + "/run/__init__.py": "",
	}
}

type fakeEntry struct {
	results map[string]regions.Set
	errs    map[string]error
}

func (e *fakeEntry) Run(ctx context.Context, imagesDir string) (regions.Set, error) {
	name := filepath.Base(imagesDir)
	if err := e.errs[name]; err != nil {
		return nil, err
	}
	return e.results[name], nil
}

type fakeLoader struct {
	probeErr error
	loadErr  error
	entry    *fakeEntry
	probes   int
}

func (l *fakeLoader) Probe(ctx context.Context, moduleDir string) error {
	l.probes++
	return l.probeErr
}

func (l *fakeLoader) Load(ctx context.Context, moduleDir string) (loader.EntryPoint, error) {
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	return l.entry, nil
}

type fakeSession struct {
	truth map[string]regions.Set
	stops int
}

func (s *fakeSession) LoadImages(ctx context.Context, dataset string) (engine.Images, error) {
	frame := regions.NewFrame(8, 8)
	frame.Set(2, 2, 1)
	return engine.Images{Name: dataset, Dir: "/data/" + dataset, Frames: []regions.Frame{frame}}, nil
}

func (s *fakeSession) LoadGroundTruth(ctx context.Context, dataset string) (regions.Set, error) {
	t, ok := s.truth[dataset]
	if !ok {
		return nil, appErr.Newf(appErr.DatasetNotFound, "dataset %s not found", dataset)
	}
	return t, nil
}

func (s *fakeSession) LoadInfo(ctx context.Context, dataset string) (model.Info, error) {
	return model.ParseInfo([]byte(`{"contributors":["Lab ` + dataset + `"]}`))
}

func (s *fakeSession) Stop() error {
	s.stops++
	return nil
}

type fakeEngine struct {
	session  *fakeSession
	startErr error
	starts   int
}

func (e *fakeEngine) Start(ctx context.Context, master, app string) (engine.Session, error) {
	e.starts++
	if e.startErr != nil {
		return nil, e.startErr
	}
	return e.session, nil
}

type posted struct {
	id      int64
	message string
}

type recordingNotifier struct {
	mu    sync.Mutex
	posts []posted
}

func (n *recordingNotifier) Post(ctx context.Context, sub model.Submission, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, posted{id: sub.ID, message: message})
	return nil
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.posts))
	for i, p := range n.posts {
		out[i] = p.message
	}
	return out
}

func square(row, col, size int) regions.Source {
	var pts []regions.Point
	for r := row; r < row+size; r++ {
		for c := col; c < col+size; c++ {
			pts = append(pts, regions.Point{r, c})
		}
	}
	return regions.Source{Coordinates: pts}
}

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func newStore() (*repository.StatusRepository, *testClock) {
	clock := &testClock{t: time.Date(2016, 4, 1, 12, 0, 0, 0, time.UTC)}
	return repository.NewStatusRepository(repository.NewMemoryCollection()).WithClock(clock.Now), clock
}

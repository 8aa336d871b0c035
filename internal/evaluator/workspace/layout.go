// Package workspace resolves the on-disk layout of a materialized submission.
package workspace

import (
	"errors"
	"os"
	"path/filepath"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

const (
	SubmissionsDir = "submissions"
	ModuleDir      = "run"
	InfoFile       = "info.json"
	EntryFile      = "run.py"
	MarkerFile     = "__init__.py"
)

// Reasons reading info.json can fail, carried as the "reason" detail.
const (
	InfoMissing    = "missing"
	InfoUnreadable = "unreadable"
	InfoMalformed  = "malformed"
)

// Layout holds absolute paths inside one checkout.
type Layout struct {
	Checkout string
	Root     string
	Module   string
}

// Resolve lays out the submission of login inside checkout.
func Resolve(checkout, login string) Layout {
	root := filepath.Join(checkout, SubmissionsDir, login)
	return Layout{
		Checkout: checkout,
		Root:     root,
		Module:   filepath.Join(root, ModuleDir),
	}
}

func (l Layout) InfoPath() string   { return filepath.Join(l.Root, InfoFile) }
func (l Layout) EntryPath() string  { return filepath.Join(l.Module, EntryFile) }
func (l Layout) MarkerPath() string { return filepath.Join(l.Module, MarkerFile) }

// HasRoot reports whether the submission directory exists.
func (l Layout) HasRoot() bool { return isDir(l.Root) }

// HasEntry reports whether run.py exists.
func (l Layout) HasEntry() bool { return isFile(l.EntryPath()) }

// HasMarker reports whether the package marker exists.
func (l Layout) HasMarker() bool { return isFile(l.MarkerPath()) }

// ReadInfo loads and parses info.json. Failures carry SubmissionInfoInvalid
// with a "reason" detail of InfoMissing, InfoUnreadable or InfoMalformed.
func (l Layout) ReadInfo() (model.Info, error) {
	path := l.InfoPath()
	if !isFile(path) {
		return model.Info{}, infoError(InfoMissing, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Info{}, infoError(InfoUnreadable, err)
	}
	info, err := model.ParseInfo(data)
	if err != nil {
		return model.Info{}, infoError(InfoMalformed, err)
	}
	return info, nil
}

// InfoReason extracts the failure reason from a ReadInfo error.
func InfoReason(err error) string {
	var e *appErr.Error
	if !errors.As(err, &e) || e.Code != appErr.SubmissionInfoInvalid {
		return ""
	}
	reason, _ := e.Details["reason"].(string)
	return reason
}

func infoError(reason string, cause error) error {
	var e *appErr.Error
	if cause == nil {
		e = appErr.Newf(appErr.SubmissionInfoInvalid, "info.json %s", reason)
	} else {
		e = appErr.Wrapf(cause, appErr.SubmissionInfoInvalid, "info.json %s", reason)
	}
	return e.WithDetail("reason", reason)
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

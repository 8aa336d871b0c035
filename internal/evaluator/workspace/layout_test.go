package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	l := Resolve("/tmp/checkout", "alice")
	if l.Root != "/tmp/checkout/submissions/alice" {
		t.Errorf("Root = %q", l.Root)
	}
	if l.EntryPath() != "/tmp/checkout/submissions/alice/run/run.py" {
		t.Errorf("EntryPath() = %q", l.EntryPath())
	}
	if l.MarkerPath() != "/tmp/checkout/submissions/alice/run/__init__.py" {
		t.Errorf("MarkerPath() = %q", l.MarkerPath())
	}
	if l.InfoPath() != "/tmp/checkout/submissions/alice/info.json" {
		t.Errorf("InfoPath() = %q", l.InfoPath())
	}
}

func TestLayoutChecks(t *testing.T) {
	dir := t.TempDir()
	l := Resolve(dir, "alice")
	if l.HasRoot() || l.HasEntry() || l.HasMarker() {
		t.Fatal("empty checkout should have nothing")
	}

	write(t, l.EntryPath(), "def run(data):\n    return []\n")
	if !l.HasRoot() || !l.HasEntry() {
		t.Error("root and entry should exist")
	}
	if l.HasMarker() {
		t.Error("marker should be missing")
	}
	if err := os.MkdirAll(l.MarkerPath(), 0o755); err != nil {
		t.Fatal(err)
	}
	if l.HasMarker() {
		t.Error("a directory is not a marker file")
	}
}

func TestReadInfo(t *testing.T) {
	tests := []struct {
		name       string
		body       *string
		wantReason string
		wantNames  int
	}{
		{name: "missing", wantReason: InfoMissing},
		{name: "malformed", body: ptr("{not json"), wantReason: InfoMalformed},
		{name: "bad contributors", body: ptr(`{"contributors": "alice", "algorithm": "nmf"}`)},
		{name: "array document", body: ptr(`["alice"]`)},
		{name: "valid", body: ptr(`{"contributors": ["alice", "bob"], "algorithm": "nmf"}`), wantNames: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Resolve(t.TempDir(), "alice")
			if tt.body != nil {
				write(t, l.InfoPath(), *tt.body)
			}
			info, err := l.ReadInfo()
			if tt.wantReason != "" {
				if got := InfoReason(err); got != tt.wantReason {
					t.Fatalf("InfoReason() = %q, want %q (err %v)", got, tt.wantReason, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadInfo() error = %v", err)
			}
			if len(info.Contributors) != tt.wantNames {
				t.Errorf("Contributors = %v", info.Contributors)
			}
			if _, ok := info.Field("algorithm"); !ok && strings.Contains(*tt.body, "algorithm") {
				t.Error("opaque fields should be kept")
			}
		})
	}
}

func ptr(s string) *string { return &s }

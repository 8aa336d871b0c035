package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	if err := s.PutObject(ctx, "b", "data/00.00/info.json", bytes.NewReader([]byte(`{}`)), 2, "application/json"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := s.PutObject(ctx, "b", "data/00.01/info.json", bytes.NewReader([]byte(`{"a":1}`)), 7, ""); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	data, err := ReadAll(ctx, s, "b", "data/00.00/info.json")
	if err != nil || string(data) != "{}" {
		t.Fatalf("unexpected read: %q %v", data, err)
	}

	var keys []string
	for obj := range s.ListObjects(ctx, "b", "data/") {
		if obj.Err != nil {
			t.Fatalf("list error: %v", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) != 2 || keys[0] != "data/00.00/info.json" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	stat, err := s.StatObject(ctx, "b", "data/00.00/info.json")
	if err != nil || stat.SizeBytes != 2 || stat.ContentType != "application/json" {
		t.Fatalf("unexpected stat: %+v %v", stat, err)
	}
	if _, err := s.StatObject(ctx, "b", "data/00.02/info.json"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStorageMissingObject(t *testing.T) {
	_, err := NewMemoryStorage().GetObject(context.Background(), "b", "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

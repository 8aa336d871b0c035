package repository

import (
	"context"
	"testing"
	"time"

	"neurojudge/internal/common/cache"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func collections(t *testing.T) map[string]Collection {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}

	bdb, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = bdb.Close() })

	return map[string]Collection{
		"memory": NewMemoryCollection(),
		"redis":  NewRedisCollection(redisCache),
		"badger": NewBadgerCollection(bdb),
	}
}

func newRepo(coll Collection) (*StatusRepository, *fakeClock) {
	clock := &fakeClock{t: time.Date(2016, 4, 1, 12, 0, 0, 0, time.UTC)}
	return NewStatusRepository(coll).WithClock(clock.Now), clock
}

func TestEnsureEntryIsIdempotent(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, _ := newRepo(coll)
			sub := model.Submission{ID: 11, Login: "ada"}

			for i := 0; i < 3; i++ {
				if err := repo.EnsureEntry(ctx, sub); err != nil {
					t.Fatalf("ensure entry: %v", err)
				}
				validated, err := repo.GetStatus(ctx, sub.ID, model.FlagValidated)
				if err != nil {
					t.Fatalf("get status: %v", err)
				}
				if validated {
					t.Fatal("fresh entry must not be validated")
				}
			}

			rec, err := repo.Get(ctx, sub.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			want := model.StatusRecord{ID: 11, Login: "ada"}
			if rec != want {
				t.Fatalf("record = %+v, want %+v", rec, want)
			}
		})
	}
}

func TestEnsureEntryDoesNotResetFlags(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, _ := newRepo(coll)
			sub := model.Submission{ID: 5, Login: "grace"}
			if err := repo.EnsureEntry(ctx, sub); err != nil {
				t.Fatalf("ensure entry: %v", err)
			}
			if err := repo.MarkStatus(ctx, sub.ID, model.FlagValidated); err != nil {
				t.Fatalf("mark: %v", err)
			}
			if err := repo.EnsureEntry(ctx, sub); err != nil {
				t.Fatalf("ensure entry: %v", err)
			}
			validated, err := repo.GetStatus(ctx, sub.ID, model.FlagValidated)
			if err != nil || !validated {
				t.Fatalf("validated = %v, %v", validated, err)
			}
		})
	}
}

func TestMarkStatusSetsFlagAndTimestamp(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, clock := newRepo(coll)
			if err := repo.EnsureEntry(ctx, model.Submission{ID: 7, Login: "ada"}); err != nil {
				t.Fatalf("ensure entry: %v", err)
			}

			if err := repo.MarkStatus(ctx, 7, model.FlagExecuted); err != nil {
				t.Fatalf("mark: %v", err)
			}
			rec, err := repo.Get(ctx, 7)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !rec.Executed || rec.ExecutedAt != clock.t.Unix() {
				t.Fatalf("after first mark: %+v", rec)
			}
			if rec.Validated || rec.ValidatedAt != 0 {
				t.Fatalf("validated must be untouched: %+v", rec)
			}

			clock.Advance(time.Minute)
			if err := repo.MarkStatus(ctx, 7, model.FlagExecuted); err != nil {
				t.Fatalf("mark again: %v", err)
			}
			rec, err = repo.Get(ctx, 7)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !rec.Executed || rec.ExecutedAt != clock.t.Unix() {
				t.Fatalf("after second mark: %+v", rec)
			}
		})
	}
}

func TestClearStatusAndTouch(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, clock := newRepo(coll)
			if err := repo.EnsureEntry(ctx, model.Submission{ID: 9, Login: "ada"}); err != nil {
				t.Fatalf("ensure entry: %v", err)
			}
			if err := repo.MarkStatus(ctx, 9, model.FlagValidated); err != nil {
				t.Fatalf("mark: %v", err)
			}
			if err := repo.ClearStatus(ctx, 9, model.FlagValidated); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := repo.TouchLastChecked(ctx, 9); err != nil {
				t.Fatalf("touch: %v", err)
			}
			rec, err := repo.Get(ctx, 9)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if rec.Validated {
				t.Fatal("validated should be cleared")
			}
			if rec.LastChecked != clock.t.Unix() {
				t.Fatalf("last_checked = %d", rec.LastChecked)
			}
		})
	}
}

func TestMissingRecord(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, _ := newRepo(coll)

			if _, err := repo.GetStatus(ctx, 404, model.FlagValidated); !appErr.Is(err, appErr.StatusNotFound) {
				t.Fatalf("GetStatus: expected StatusNotFound, got %v", err)
			}
			if err := repo.MarkStatus(ctx, 404, model.FlagExecuted); !appErr.Is(err, appErr.StatusNotFound) {
				t.Fatalf("MarkStatus: expected StatusNotFound, got %v", err)
			}
			if err := repo.TouchLastChecked(ctx, 404); !appErr.Is(err, appErr.StatusNotFound) {
				t.Fatalf("TouchLastChecked: expected StatusNotFound, got %v", err)
			}
		})
	}
}

func TestListOrdersByID(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, _ := newRepo(coll)
			for _, id := range []int64{30, 2, 17} {
				if err := repo.EnsureEntry(ctx, model.Submission{ID: id, Login: "u"}); err != nil {
					t.Fatalf("ensure entry: %v", err)
				}
			}
			recs, err := repo.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(recs) != 3 || recs[0].ID != 2 || recs[1].ID != 17 || recs[2].ID != 30 {
				t.Fatalf("unexpected order: %+v", recs)
			}
		})
	}
}

func TestUnknownFlagRejected(t *testing.T) {
	repo, _ := newRepo(NewMemoryCollection())
	ctx := context.Background()
	if err := repo.EnsureEntry(ctx, model.Submission{ID: 1}); err != nil {
		t.Fatalf("ensure entry: %v", err)
	}
	if err := repo.MarkStatus(ctx, 1, model.Flag("last_checked")); !appErr.Is(err, appErr.InvalidFlag) {
		t.Fatalf("expected InvalidFlag, got %v", err)
	}
	if err := repo.ClearStatus(ctx, 1, model.Flag("login")); !appErr.Is(err, appErr.InvalidFlag) {
		t.Fatalf("expected InvalidFlag, got %v", err)
	}
}

func TestRequeueForcesStaleness(t *testing.T) {
	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, _ := newRepo(coll)
			if err := repo.EnsureEntry(ctx, model.Submission{ID: 21, Login: "ada"}); err != nil {
				t.Fatal(err)
			}
			if err := repo.MarkStatus(ctx, 21, model.FlagExecuted); err != nil {
				t.Fatal(err)
			}
			if err := repo.TouchLastChecked(ctx, 21); err != nil {
				t.Fatal(err)
			}

			if err := repo.Requeue(ctx, 21, model.FlagExecuted); err != nil {
				t.Fatalf("Requeue() error = %v", err)
			}
			rec, err := repo.Get(ctx, 21)
			if err != nil {
				t.Fatal(err)
			}
			if rec.Executed || rec.LastChecked != 0 {
				t.Errorf("record after requeue = %+v", rec)
			}
			if rec.ExecutedAt == 0 {
				t.Error("requeue should keep the executed_at history")
			}

			if err := repo.Requeue(ctx, 404, model.FlagExecuted); !appErr.Is(err, appErr.StatusNotFound) {
				t.Errorf("Requeue() on missing record error = %v", err)
			}
		})
	}
}

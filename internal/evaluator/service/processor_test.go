package service

import (
	"context"
	"testing"
	"time"

	"neurojudge/internal/evaluator/metrics"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

type stubValidator struct {
	ok    bool
	err   error
	calls int
	store StatusStore
}

func (v *stubValidator) Validate(ctx context.Context, sub model.Submission) (bool, string, error) {
	v.calls++
	if v.err != nil {
		return false, "", v.err
	}
	if v.ok {
		if err := v.store.MarkStatus(ctx, sub.ID, model.FlagValidated); err != nil {
			return false, "", err
		}
		return true, MessageValidationSucceeded, nil
	}
	return false, ValidationMessage([]string{ReasonEntryMissing}), nil
}

type stubExecutor struct {
	calls int
	err   error
	store StatusStore
}

func (e *stubExecutor) Execute(ctx context.Context, sub model.Submission) (metrics.Metrics, model.Info, error) {
	e.calls++
	if e.err != nil {
		return nil, model.Info{}, e.err
	}
	if err := e.store.MarkStatus(ctx, sub.ID, model.FlagExecuted); err != nil {
		return nil, model.Info{}, err
	}
	return metrics.New(), model.Info{}, nil
}

func TestIsRecent(t *testing.T) {
	ctx := context.Background()
	store, clock := newStore()
	sub := model.Submission{ID: 5, Login: "ada", UpdatedAt: clock.t.Add(-time.Hour)}
	if err := store.EnsureEntry(ctx, sub); err != nil {
		t.Fatalf("ensure entry: %v", err)
	}

	recent, err := IsRecent(ctx, store, sub)
	if err != nil || !recent {
		t.Fatalf("never-checked submission must be recent: %v, %v", recent, err)
	}
	if err := store.TouchLastChecked(ctx, sub.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if recent, _ := IsRecent(ctx, store, sub); recent {
		t.Fatal("checked submission must not be recent")
	}
	sub.UpdatedAt = clock.t.Add(time.Minute)
	if recent, _ := IsRecent(ctx, store, sub); !recent {
		t.Fatal("updated submission must be recent")
	}

	if _, err := IsRecent(ctx, store, model.Submission{ID: 99}); !appErr.Is(err, appErr.StatusNotFound) {
		t.Fatalf("expected StatusNotFound, got %v", err)
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	store, clock := newStore()
	v := &stubValidator{ok: true, store: store}
	e := &stubExecutor{store: store}
	p := &Processor{store: store, validator: v, executor: e}
	sub := model.Submission{ID: 8, Login: "ada", UpdatedAt: clock.t.Add(-time.Hour)}

	action, err := p.Process(ctx, sub)
	if err != nil || action != ActionExecuted {
		t.Fatalf("first pass = %q, %v", action, err)
	}
	rec, _ := store.Get(ctx, sub.ID)
	if rec.LastChecked == 0 || !rec.Validated || !rec.Executed {
		t.Fatalf("unexpected record after first pass %+v", rec)
	}

	action, err = p.Process(ctx, sub)
	if err != nil || action != ActionSkipped {
		t.Fatalf("unchanged pass = %q, %v", action, err)
	}
	if v.calls != 1 || e.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", v.calls, e.calls)
	}

	clock.t = clock.t.Add(time.Hour)
	sub.UpdatedAt = clock.t.Add(-time.Minute)
	action, err = p.Process(ctx, sub)
	if err != nil || action != ActionValidated {
		t.Fatalf("updated pass = %q, %v", action, err)
	}
	if v.calls != 2 || e.calls != 1 {
		t.Fatalf("executed submissions must not run again: calls = %d/%d", v.calls, e.calls)
	}
}

func TestProcessRejected(t *testing.T) {
	ctx := context.Background()
	store, clock := newStore()
	e := &stubExecutor{store: store}
	p := &Processor{store: store, validator: &stubValidator{store: store}, executor: e}
	sub := model.Submission{ID: 9, Login: "ada", UpdatedAt: clock.t.Add(-time.Hour)}

	action, err := p.Process(ctx, sub)
	if err != nil || action != ActionRejected {
		t.Fatalf("Process() = %q, %v", action, err)
	}
	if e.calls != 0 {
		t.Fatal("rejected submissions must not execute")
	}
	rec, _ := store.Get(ctx, sub.ID)
	if rec.LastChecked != clock.t.Unix() {
		t.Fatalf("last_checked = %d, want %d", rec.LastChecked, clock.t.Unix())
	}
}

func TestProcessTouchesAfterValidationError(t *testing.T) {
	ctx := context.Background()
	store, clock := newStore()
	v := &stubValidator{err: appErr.New(appErr.SubmissionMaterializeFailed)}
	p := &Processor{store: store, validator: v, executor: &stubExecutor{store: store}}
	sub := model.Submission{ID: 10, Login: "ada", UpdatedAt: clock.t.Add(-time.Hour)}

	if _, err := p.Process(ctx, sub); !appErr.Is(err, appErr.SubmissionMaterializeFailed) {
		t.Fatalf("expected SubmissionMaterializeFailed, got %v", err)
	}
	rec, _ := store.Get(ctx, sub.ID)
	if rec.LastChecked == 0 {
		t.Fatal("last_checked must advance after a validation attempt")
	}
}

func TestProcessAfterRequeue(t *testing.T) {
	ctx := context.Background()
	store, clock := newStore()
	e := &stubExecutor{store: store}
	p := &Processor{store: store, validator: &stubValidator{ok: true, store: store}, executor: e}
	sub := model.Submission{ID: 11, Login: "ada", UpdatedAt: clock.t.Add(-time.Hour)}

	if _, err := p.Process(ctx, sub); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := store.Requeue(ctx, sub.ID, model.FlagExecuted); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	action, err := p.Process(ctx, sub)
	if err != nil || action != ActionExecuted {
		t.Fatalf("requeued pass = %q, %v", action, err)
	}
	if e.calls != 2 {
		t.Fatalf("execute calls = %d, want 2", e.calls)
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"neurojudge/internal/common/mq"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

func TestRequeueHandler(t *testing.T) {
	ctx := context.Background()
	store, clock := newStore()
	sub := model.Submission{ID: 21, Login: "ada", UpdatedAt: clock.t.Add(-time.Hour)}
	if err := store.EnsureEntry(ctx, sub); err != nil {
		t.Fatalf("ensure entry: %v", err)
	}
	if err := store.MarkStatus(ctx, sub.ID, model.FlagExecuted); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := store.TouchLastChecked(ctx, sub.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	h := NewRequeueHandler(store)
	msg, err := NewRequeueMessage(RequeueRequest{ID: sub.ID, Flag: "executed"})
	if err != nil {
		t.Fatalf("NewRequeueMessage() error = %v", err)
	}
	if msg.ID != "21" {
		t.Fatalf("message key = %q, want 21", msg.ID)
	}
	if err := h.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	rec, _ := store.Get(ctx, sub.ID)
	if rec.Executed || rec.LastChecked != 0 || rec.ExecutedAt == 0 {
		t.Fatalf("unexpected record after requeue %+v", rec)
	}
	if recent, _ := IsRecent(ctx, store, sub); !recent {
		t.Fatal("requeued submission must be revisited")
	}
}

func TestRequeueHandlerRejects(t *testing.T) {
	store, _ := newStore()
	h := NewRequeueHandler(store)
	tests := []struct {
		name string
		body string
		code appErr.ErrorCode
	}{
		{name: "malformed", body: "{", code: appErr.InvalidParams},
		{name: "missing id", body: `{"flag":"validated"}`, code: appErr.ValidationFailed},
		{name: "unknown flag", body: `{"id":3,"flag":"merged"}`, code: appErr.InvalidFlag},
		{name: "unknown submission", body: `{"id":3,"flag":"validated"}`, code: appErr.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), mq.NewMessage([]byte(tt.body)))
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

// Package service drives submissions through validation and execution.
package service

import (
	"context"

	"neurojudge/internal/evaluator/model"
)

// StatusStore is the lifecycle state the service reads and advances.
type StatusStore interface {
	EnsureEntry(ctx context.Context, sub model.Submission) error
	Get(ctx context.Context, id int64) (model.StatusRecord, error)
	GetStatus(ctx context.Context, id int64, flag model.Flag) (bool, error)
	MarkStatus(ctx context.Context, id int64, flag model.Flag) error
	ClearStatus(ctx context.Context, id int64, flag model.Flag) error
	TouchLastChecked(ctx context.Context, id int64) error
}

// IsRecent reports whether sub changed after it was last checked. Both sides
// are UTC epoch seconds. The record must exist.
func IsRecent(ctx context.Context, store StatusStore, sub model.Submission) (bool, error) {
	rec, err := store.Get(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	return rec.LastChecked < sub.UpdatedAtEpoch(), nil
}

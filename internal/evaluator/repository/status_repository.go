package repository

import (
	"context"
	"time"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// StatusRepository implements the lifecycle operations on top of a Collection.
type StatusRepository struct {
	coll Collection
	now  func() time.Time
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(coll Collection) *StatusRepository {
	return &StatusRepository{coll: coll, now: time.Now}
}

// WithClock overrides the time source used for timestamps.
func (r *StatusRepository) WithClock(now func() time.Time) *StatusRepository {
	r.now = now
	return r
}

func (r *StatusRepository) epoch() int64 {
	return r.now().UTC().Unix()
}

// EnsureEntry creates the default record for sub if it has none. Safe to repeat.
func (r *StatusRepository) EnsureEntry(ctx context.Context, sub model.Submission) error {
	if sub.ID == 0 {
		return appErr.ValidationError("id", "required")
	}
	created, err := r.coll.InsertOne(ctx, model.NewStatusRecord(sub))
	if err != nil {
		return err
	}
	if created {
		logger.Info(ctx, "created status entry",
			zap.Int64("submission_id", sub.ID),
			zap.String("login", sub.Login),
		)
	}
	return nil
}

// Get returns the whole record for id.
func (r *StatusRepository) Get(ctx context.Context, id int64) (model.StatusRecord, error) {
	rec, ok, err := r.coll.FindOne(ctx, id)
	if err != nil {
		return model.StatusRecord{}, err
	}
	if !ok {
		return model.StatusRecord{}, appErr.Newf(appErr.StatusNotFound, "status %d not found", id).
			WithDetail("submission_id", id)
	}
	return rec, nil
}

// GetStatus reads one flag. A missing record is a StatusNotFound error.
func (r *StatusRepository) GetStatus(ctx context.Context, id int64, flag model.Flag) (bool, error) {
	if err := flag.Validate(); err != nil {
		return false, err
	}
	rec, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.Flag(flag), nil
}

// ClearStatus resets flag to false. The paired timestamp is kept.
func (r *StatusRepository) ClearStatus(ctx context.Context, id int64, flag model.Flag) error {
	if err := flag.Validate(); err != nil {
		return err
	}
	if err := r.coll.UpdateOne(ctx, id, Update{string(flag): false}); err != nil {
		return err
	}
	logger.Info(ctx, "cleared status flag", zap.Int64("submission_id", id), zap.String("flag", string(flag)))
	return nil
}

// MarkStatus sets flag and its timestamp in one update.
func (r *StatusRepository) MarkStatus(ctx context.Context, id int64, flag model.Flag) error {
	if err := flag.Validate(); err != nil {
		return err
	}
	return r.coll.UpdateOne(ctx, id, Update{
		string(flag):          true,
		flag.TimestampField(): r.epoch(),
	})
}

// TouchLastChecked records that the submission was just examined.
func (r *StatusRepository) TouchLastChecked(ctx context.Context, id int64) error {
	return r.coll.UpdateOne(ctx, id, Update{model.FieldLastChecked: r.epoch()})
}

// Requeue clears flag and forgets when the submission was last checked, so
// the next pass treats it as changed.
func (r *StatusRepository) Requeue(ctx context.Context, id int64, flag model.Flag) error {
	if err := flag.Validate(); err != nil {
		return err
	}
	if err := r.coll.UpdateOne(ctx, id, Update{string(flag): false, model.FieldLastChecked: int64(0)}); err != nil {
		return err
	}
	logger.Info(ctx, "requeued submission", zap.Int64("submission_id", id), zap.String("flag", string(flag)))
	return nil
}

// List returns every record in id order.
func (r *StatusRepository) List(ctx context.Context) ([]model.StatusRecord, error) {
	ids, err := r.coll.IDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.StatusRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := r.coll.FindOne(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

package repository

import (
	"context"
	"strings"

	"neurojudge/internal/common/db"
	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

const statusTable = "submission_status"

const statusSchema = `CREATE TABLE IF NOT EXISTS ` + statusTable + ` (
	id BIGINT NOT NULL PRIMARY KEY,
	login VARCHAR(255) NOT NULL,
	validated TINYINT(1) NOT NULL DEFAULT 0,
	executed TINYINT(1) NOT NULL DEFAULT 0,
	last_checked BIGINT NOT NULL DEFAULT 0,
	validated_at BIGINT NOT NULL DEFAULT 0,
	executed_at BIGINT NOT NULL DEFAULT 0
)`

const statusColumns = "id, login, validated, executed, last_checked, validated_at, executed_at"

// MySQLCollection stores status documents as rows of submission_status.
type MySQLCollection struct {
	db db.Database
}

func NewMySQLCollection(database db.Database) *MySQLCollection {
	return &MySQLCollection{db: database}
}

// EnsureSchema creates the status table when missing.
func (c *MySQLCollection) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, statusSchema); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "create %s failed", statusTable)
	}
	return nil
}

func (c *MySQLCollection) FindOne(ctx context.Context, id int64) (model.StatusRecord, bool, error) {
	var rec model.StatusRecord
	row := c.db.QueryRow(ctx, "SELECT "+statusColumns+" FROM "+statusTable+" WHERE id = ?", id)
	err := row.Scan(&rec.ID, &rec.Login, &rec.Validated, &rec.Executed, &rec.LastChecked, &rec.ValidatedAt, &rec.ExecutedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.StatusRecord{}, false, nil
		}
		return model.StatusRecord{}, false, appErr.Wrapf(err, appErr.DatabaseError, "load status %d failed", id)
	}
	return rec, true, nil
}

func (c *MySQLCollection) InsertOne(ctx context.Context, rec model.StatusRecord) (bool, error) {
	_, err := c.db.Exec(ctx,
		"INSERT INTO "+statusTable+" ("+statusColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Login, rec.Validated, rec.Executed, rec.LastChecked, rec.ValidatedAt, rec.ExecutedAt)
	if err != nil {
		if db.IsDuplicateKey(err) {
			return false, nil
		}
		return false, appErr.Wrapf(err, appErr.DatabaseError, "insert status %d failed", rec.ID)
	}
	return true, nil
}

// UpdateOne issues one UPDATE carrying every field of set. Column names come
// from the checkUpdate whitelist, never from callers.
func (c *MySQLCollection) UpdateOne(ctx context.Context, id int64, set Update) error {
	if err := checkUpdate(set); err != nil {
		return err
	}

	fields := sortedFields(set)
	assignments := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for _, f := range fields {
		assignments = append(assignments, f+" = ?")
		args = append(args, set[f])
	}
	args = append(args, id)

	res, err := c.db.Exec(ctx, "UPDATE "+statusTable+" SET "+strings.Join(assignments, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update status %d failed", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update status %d failed", id)
	}
	if affected > 0 {
		return nil
	}

	// MySQL reports 0 affected rows when values are unchanged; tell that apart
	// from a missing row.
	var one int
	if err := c.db.QueryRow(ctx, "SELECT 1 FROM "+statusTable+" WHERE id = ?", id).Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return appErr.Newf(appErr.StatusNotFound, "status %d not found", id)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "update status %d failed", id)
	}
	return nil
}

func (c *MySQLCollection) IDs(ctx context.Context) ([]int64, error) {
	rows, err := c.db.Query(ctx, "SELECT id FROM "+statusTable+" ORDER BY id")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list status ids failed")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "list status ids failed")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list status ids failed")
	}
	return ids, nil
}

var _ Collection = (*MySQLCollection)(nil)

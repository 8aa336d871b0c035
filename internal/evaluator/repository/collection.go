package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"neurojudge/internal/evaluator/model"
	appErr "neurojudge/pkg/errors"
)

// Update is a field-level $set: each entry overwrites one document field.
// Values are bool for flags and int64 for timestamps.
type Update map[string]interface{}

// Collection is the document store holding one status document per submission id.
type Collection interface {
	// FindOne returns the document for id and whether it exists.
	FindOne(ctx context.Context, id int64) (model.StatusRecord, bool, error)

	// InsertOne stores rec unless a document with the same id exists.
	// Returns true when a new document was written.
	InsertOne(ctx context.Context, rec model.StatusRecord) (bool, error)

	// UpdateOne applies set to an existing document. All fields of one update
	// become visible together. Missing documents yield StatusNotFound.
	UpdateOne(ctx context.Context, id int64, set Update) error

	// IDs lists every tracked submission id in ascending order.
	IDs(ctx context.Context) ([]int64, error)
}

var (
	boolFields = map[string]bool{
		string(model.FlagValidated): true,
		string(model.FlagExecuted):  true,
	}
	intFields = map[string]bool{
		model.FieldLastChecked:               true,
		model.FlagValidated.TimestampField(): true,
		model.FlagExecuted.TimestampField():  true,
	}
)

// checkUpdate rejects empty updates, unknown fields and mistyped values.
func checkUpdate(set Update) error {
	if len(set) == 0 {
		return appErr.ValidationError("update", "empty")
	}
	for field, v := range set {
		switch {
		case boolFields[field]:
			if _, ok := v.(bool); !ok {
				return appErr.ValidationError(field, "must be bool")
			}
		case intFields[field]:
			if _, ok := v.(int64); !ok {
				return appErr.ValidationError(field, "must be int64")
			}
		default:
			return appErr.ValidationError(field, "not updatable")
		}
	}
	return nil
}

// sortedFields returns set's keys in a stable order.
func sortedFields(set Update) []string {
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// applyUpdate writes set into rec. set must have passed checkUpdate.
func applyUpdate(rec *model.StatusRecord, set Update) {
	for field, v := range set {
		switch field {
		case string(model.FlagValidated):
			rec.Validated = v.(bool)
		case string(model.FlagExecuted):
			rec.Executed = v.(bool)
		case model.FieldLastChecked:
			rec.LastChecked = v.(int64)
		case model.FlagValidated.TimestampField():
			rec.ValidatedAt = v.(int64)
		case model.FlagExecuted.TimestampField():
			rec.ExecutedAt = v.(int64)
		}
	}
}

// recordFields flattens rec into string-encoded hash fields.
func recordFields(rec model.StatusRecord) map[string]interface{} {
	return map[string]interface{}{
		model.FieldID:                        rec.ID,
		model.FieldLogin:                     rec.Login,
		string(model.FlagValidated):          encodeBool(rec.Validated),
		string(model.FlagExecuted):           encodeBool(rec.Executed),
		model.FieldLastChecked:               rec.LastChecked,
		model.FlagValidated.TimestampField(): rec.ValidatedAt,
		model.FlagExecuted.TimestampField():  rec.ExecutedAt,
	}
}

// parseRecord rebuilds a record from string hash fields. Absent fields keep
// their zero defaults.
func parseRecord(fields map[string]string) (model.StatusRecord, error) {
	var rec model.StatusRecord
	var err error
	for k, v := range fields {
		switch k {
		case model.FieldID:
			rec.ID, err = strconv.ParseInt(v, 10, 64)
		case model.FieldLogin:
			rec.Login = v
		case string(model.FlagValidated):
			rec.Validated = v == "1"
		case string(model.FlagExecuted):
			rec.Executed = v == "1"
		case model.FieldLastChecked:
			rec.LastChecked, err = strconv.ParseInt(v, 10, 64)
		case model.FlagValidated.TimestampField():
			rec.ValidatedAt, err = strconv.ParseInt(v, 10, 64)
		case model.FlagExecuted.TimestampField():
			rec.ExecutedAt, err = strconv.ParseInt(v, 10, 64)
		}
		if err != nil {
			return model.StatusRecord{}, fmt.Errorf("decode field %s: %w", k, err)
		}
	}
	return rec, nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// encodeValue turns an Update value into its hash representation.
func encodeValue(v interface{}) interface{} {
	if b, ok := v.(bool); ok {
		return encodeBool(b)
	}
	return v
}

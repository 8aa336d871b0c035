package model

import (
	"strings"

	appErr "neurojudge/pkg/errors"
)

// Flag names a boolean lifecycle flag on a StatusRecord.
type Flag string

const (
	FlagValidated Flag = "validated"
	FlagExecuted  Flag = "executed"
)

// Status document field names.
const (
	FieldID          = "id"
	FieldLogin       = "login"
	FieldLastChecked = "last_checked"
)

// ParseFlag validates a flag name coming from configuration, HTTP or the CLI.
func ParseFlag(name string) (Flag, error) {
	f := Flag(strings.ToLower(strings.TrimSpace(name)))
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

// Validate rejects names outside the closed flag set.
func (f Flag) Validate() error {
	switch f {
	case FlagValidated, FlagExecuted:
		return nil
	default:
		return appErr.Newf(appErr.InvalidFlag, "unknown status flag %q", string(f)).
			WithDetail("flag", string(f))
	}
}

// TimestampField is the field recording when the flag was last set.
func (f Flag) TimestampField() string {
	return string(f) + "_at"
}

// StatusRecord is the persisted lifecycle state for one submission id.
// All timestamps are UTC epoch seconds; zero means never.
type StatusRecord struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Validated   bool   `json:"validated"`
	Executed    bool   `json:"executed"`
	LastChecked int64  `json:"last_checked"`
	ValidatedAt int64  `json:"validated_at"`
	ExecutedAt  int64  `json:"executed_at"`
}

// NewStatusRecord returns the default record created on first observation.
func NewStatusRecord(sub Submission) StatusRecord {
	return StatusRecord{ID: sub.ID, Login: sub.Login}
}

// Flag reads the named flag.
func (r StatusRecord) Flag(f Flag) bool {
	switch f {
	case FlagValidated:
		return r.Validated
	case FlagExecuted:
		return r.Executed
	}
	return false
}

// FlagAt reads the timestamp paired with the named flag.
func (r StatusRecord) FlagAt(f Flag) int64 {
	switch f {
	case FlagValidated:
		return r.ValidatedAt
	case FlagExecuted:
		return r.ExecutedAt
	}
	return 0
}

package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsDuplicateKey matches MySQL duplicate-entry errors anywhere in err's chain.
func IsDuplicateKey(err error) bool {
	_, ok := UniqueViolation(err)
	return ok
}

// UniqueViolation returns the violated key name, e.g. "submission_status.PRIMARY".
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return "", false
	}
	_, key, found := strings.Cut(myErr.Message, "for key ")
	if !found {
		return "", true
	}
	return strings.Trim(key, " `\"'"), true
}

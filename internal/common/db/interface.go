package db

import "context"

// Querier runs statements; *MySQL and test fakes implement it.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Database is the connection-pool abstraction repositories depend on.
type Database interface {
	Querier
	Ping(ctx context.Context) error
	Close() error
}

// Rows iterates a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an Exec.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

var _ Database = (*MySQL)(nil)

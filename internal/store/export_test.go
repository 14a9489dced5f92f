package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// DB exposes the internal *sql.DB for test helpers in store_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailCommit makes every later commit fail with err.
func (s *Store) FailCommit(err error) {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}

// FailExecContaining makes exec fail with err whenever the query
// contains fragment.
func (s *Store) FailExecContaining(fragment string, err error) {
	next := s.hooks.exec
	s.hooks.exec = func(ctx context.Context, db dbtx, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, fragment) {
			return nil, err
		}
		return next(ctx, db, query, args...)
	}
}

// SetClock freezes the store clock and returns a restore func.
func SetClock(t time.Time) func() {
	prev := timeNow
	timeNow = func() time.Time { return t }
	return func() { timeNow = prev }
}

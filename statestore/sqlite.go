// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

// SQLite is a Store persisted to a SQLite database file.
type SQLite struct {
	db    *sql.DB
	clock wallclock.WallClock
	log   logger
}

const schema = `
CREATE TABLE IF NOT EXISTS exchange_state (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS exchange_state_expiry
	ON exchange_state (expires_at) WHERE expires_at != 0;
`

// Expired rows are treated as absent by every query; expires_at is in unix
// nanoseconds with 0 meaning no expiry.
const (
	live = `(expires_at = 0 OR expires_at > ?)`

	getQuery = `SELECT value FROM exchange_state WHERE key = ? AND ` + live

	setQuery = `
INSERT INTO exchange_state (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE
	SET value = excluded.value, expires_at = excluded.expires_at`

	setNXQuery = setQuery + `
	WHERE exchange_state.expires_at != 0 AND exchange_state.expires_at <= ?`

	delQuery = `DELETE FROM exchange_state WHERE key = ? AND ` + live

	purgeQuery = `DELETE FROM exchange_state
WHERE expires_at != 0 AND expires_at <= ?`
)

// OpenSQLite opens or creates the database at the given path and ensures the
// schema exists.
func OpenSQLite(ctx context.Context, path string, opt ...Option) (*SQLite, error) {
	if path == "" {
		return nil, ArgumentError{Name: "path"}
	}

	var opts Options
	opts.Apply(opt)

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{
		db:    db,
		clock: wallclock.Or(opts.Clock),
		log:   logger{log.Wrap(opts.Logger)},
	}, nil
}

// Get returns the value of the given key, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validate(key, nil); err != nil {
		return nil, err
	}
	s.log.op(ctx, "GET", key)

	var val []byte
	err := s.db.QueryRowContext(ctx, getQuery, key, s.now()).Scan(&val)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return val, nil
}

// Set the value of the given key.
func (s *SQLite) Set(
	ctx context.Context,
	key string,
	val []byte,
	opt ...SetOption,
) (bool, error) {
	var opts SetOptions
	opts.Apply(opt)
	if err := validate(key, &opts); err != nil {
		return false, err
	}
	s.log.op(ctx, "SET", key)

	now := s.now()
	var exp int64
	if opts.Expiry > 0 {
		exp = now + opts.Expiry.Nanoseconds()
	}
	if val == nil {
		val = []byte{}
	}

	var res sql.Result
	var err error
	if opts.Condition == NotExists {
		res, err = s.db.ExecContext(ctx, setNXQuery, key, val, exp, now)
	} else {
		res, err = s.db.ExecContext(ctx, setQuery, key, val, exp)
	}
	if err != nil {
		return false, fmt.Errorf("set %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set %q: %w", key, err)
	}
	return n > 0, nil
}

// Del deletes the given key and reports whether it was present.
func (s *SQLite) Del(ctx context.Context, key string) (bool, error) {
	if err := validate(key, nil); err != nil {
		return false, err
	}
	s.log.op(ctx, "DEL", key)

	res, err := s.db.ExecContext(ctx, delQuery, key, s.now())
	if err != nil {
		return false, fmt.Errorf("del %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("del %q: %w", key, err)
	}
	return n > 0, nil
}

// Purge removes expired rows and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, purgeQuery, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	s.log.expired(ctx, int(n))
	return int(n), nil
}

// Close the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) now() int64 {
	return s.clock.Now().UnixNano()
}

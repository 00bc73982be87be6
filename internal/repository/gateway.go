package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Store error kinds. Every error returned by this package matches exactly one
// of them with errors.Is.
var (
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrForeignKey       = errors.New("foreign key violation")
	ErrNotFound         = errors.New("record not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a driver error with its classified kind.
type StoreError struct {
	Kind       error
	Constraint string // violated constraint or column, when the driver reports one
	Err        error
}

func (e *StoreError) Error() string {
	if e.Constraint != "" {
		return e.Kind.Error() + " (" + e.Constraint + "): " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Constraint returns the constraint named by a classified error, if any.
func Constraint(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Constraint
	}
	return ""
}

// classify maps driver and gorm errors onto the store error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &StoreError{Kind: ErrDuplicateKey, Constraint: pgErr.ConstraintName, Err: err}
		case "23503":
			return &StoreError{Kind: ErrForeignKey, Constraint: pgErr.ConstraintName, Err: err}
		}
		return &StoreError{Kind: ErrStoreUnavailable, Err: err}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &StoreError{Kind: ErrDuplicateKey, Constraint: sqliteConstraint(liteErr.Error()), Err: err}
		case sqlite3.ErrConstraintForeignKey:
			return &StoreError{Kind: ErrForeignKey, Err: err}
		}
		return &StoreError{Kind: ErrStoreUnavailable, Err: err}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &StoreError{Kind: ErrNotFound, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &StoreError{Kind: ErrDuplicateKey, Err: err}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &StoreError{Kind: ErrForeignKey, Err: err}
	}
	return &StoreError{Kind: ErrStoreUnavailable, Err: err}
}

// sqliteConstraint extracts "users.email" from
// "UNIQUE constraint failed: users.email".
func sqliteConstraint(msg string) string {
	if i := strings.LastIndex(msg, "failed: "); i >= 0 {
		return strings.TrimSpace(msg[i+len("failed: "):])
	}
	return ""
}

// Ping checks the store is reachable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return classify(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

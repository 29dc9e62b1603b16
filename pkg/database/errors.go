package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/rentora/rentora-backend/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MapError converts a Postgres or SQLite constraint violation to an AppError
// with a meaningful message. Returns nil if err is not a recognised violation.
func MapError(err error) *errors.AppError {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return mapPQError(pqErr)
	}

	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		return mapSQLiteError(liteErr)
	}

	return nil
}

func mapPQError(pqErr *pq.Error) *errors.AppError {
	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr.Constraint))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.FieldValidation(col, "must not be empty")

	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr.Constraint)

	default:
		return nil
	}
}

// SQLite reports the failing columns in the message, e.g.
// "UNIQUE constraint failed: inventory_units.serial_number".
func mapSQLiteError(liteErr *sqlite.Error) *errors.AppError {
	msg := liteErr.Error()

	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return errors.Conflict(formatConstraintMessage(msg))
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return errors.BadRequest("referenced record does not exist")
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		col := "required field"
		if i := strings.LastIndex(msg, "."); i >= 0 {
			col = strings.TrimSpace(msg[i+1:])
		}
		return errors.FieldValidation(col, "must not be empty")
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return mapCheckConstraint(msg)
	default:
		return nil
	}
}

// mapCheckConstraint maps CHECK constraint names to user-friendly messages.
func mapCheckConstraint(constraint string) *errors.AppError {
	switch {
	case strings.Contains(constraint, "status"):
		return errors.FieldValidation("status", "must be one of: in_stock, rented, maintenance, retired")
	case strings.Contains(constraint, "consumer_type"):
		return errors.FieldValidation("consumer_type", "must be one of: rental, sale, service")
	case strings.Contains(constraint, "quantity"):
		return errors.FieldValidation("quantity", "must not be negative")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "serial_number"):
		return "a unit with this serial number already exists"
	case strings.Contains(constraint, "barcode"):
		return "a unit with this barcode already exists"
	case strings.Contains(constraint, "categories"):
		return "a category with this name already exists"
	case strings.Contains(constraint, "allocation_units"):
		return "unit is already part of an active allocation"
	default:
		return "a record with these values already exists"
	}
}

// IsUniqueViolation reports whether err is a unique-key violation mentioning column.
// An empty column matches any unique violation.
func IsUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint+pqErr.Detail, column)
	}
	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		code := liteErr.Code()
		return (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) &&
			strings.Contains(liteErr.Error(), column)
	}
	return false
}

// IsNoRows reports whether err is sql.ErrNoRows
func IsNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

// IsTransient reports whether err is a storage failure worth retrying:
// serialization/deadlock aborts, lock contention, and dropped connections.
// Business errors and constraint violations are never transient.
func IsTransient(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return false
	}

	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03", "57P01", "57P03":
			return true
		}
		return pqErr.Code.Class() == "08"
	}

	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var netErr net.Error
	return stderrors.As(err, &netErr)
}

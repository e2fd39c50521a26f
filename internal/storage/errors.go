package storage

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrStorageDisabled is returned by every call when persistence is turned off
	ErrStorageDisabled = errors.New("storage is disabled")

	// ErrNotFound is returned when an instance does not exist
	ErrNotFound = errors.New("instance not found")

	// ErrUniqueViolation is returned when two writers race on the same identifier
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// UnavailableError wraps transient connectivity or schema failures
type UnavailableError struct {
	Op   string
	Code string
	Err  error
}

func (e *UnavailableError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storage unavailable during %s (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// unavailableSQLStates are PostgreSQL codes that mean the database cannot serve
// requests right now, including a schema that has not been migrated yet.
var unavailableSQLStates = map[string]struct{}{
	"08000": {}, // connection_exception
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08003": {}, // connection_does_not_exist
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"08006": {}, // connection_failure
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
	"53300": {}, // too_many_connections
	"42P01": {}, // undefined_table
	"3D000": {}, // invalid_catalog_name
}

const uniqueViolationSQLState = "23505"

// IsStorageError reports whether err means storage is disabled or unavailable
func IsStorageError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStorageDisabled) {
		return true
	}
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// classifyPgError maps pgx errors onto the storage taxonomy
func classifyPgError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolationSQLState {
			return fmt.Errorf("%s: %w: %s", op, ErrUniqueViolation, pgErr.ConstraintName)
		}
		if _, ok := unavailableSQLStates[pgErr.Code]; ok {
			return &UnavailableError{Op: op, Code: pgErr.Code, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		return &UnavailableError{Op: op, Err: err}
	}
	if strings.Contains(err.Error(), "closed pool") {
		return &UnavailableError{Op: op, Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// classifySQLiteError maps modernc sqlite errors onto the storage taxonomy
func classifySQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, ErrUniqueViolation)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return &UnavailableError{Op: op, Code: fmt.Sprintf("sqlite:%d", liteErr.Code()), Err: err}
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", op, ErrUniqueViolation)
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "database is closed"):
		return &UnavailableError{Op: op, Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}

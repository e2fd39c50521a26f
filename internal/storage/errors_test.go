package storage

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPgError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		err             error
		wantUnique      bool
		wantUnavailable bool
	}{
		{name: "nil", err: nil},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "pk"}, wantUnique: true},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, wantUnavailable: true},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, wantUnavailable: true},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, wantUnavailable: true},
		{name: "syntax error is neither", err: &pgconn.PgError{Code: "42601"}},
		{name: "network error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, wantUnavailable: true},
		{name: "wrapped network error", err: fmt.Errorf("query: %w", &net.OpError{Op: "read", Err: errors.New("reset")}), wantUnavailable: true},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyPgError("op", tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.wantUnique, errors.Is(got, ErrUniqueViolation))
			assert.Equal(t, tt.wantUnavailable, IsStorageError(got))
		})
	}
}

func TestClassifySQLiteError(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, classifySQLiteError("op", errors.New("constraint failed: UNIQUE constraint failed: whatsapp_instances.id")), ErrUniqueViolation)
	assert.True(t, IsStorageError(classifySQLiteError("op", errors.New("SQL logic error: no such table: whatsapp_instances"))))
	assert.False(t, IsStorageError(classifySQLiteError("op", errors.New("boom"))))
	assert.NoError(t, classifySQLiteError("op", nil))
}

func TestUnavailableError(t *testing.T) {
	t.Parallel()

	inner := errors.New("dial tcp: refused")
	err := &UnavailableError{Op: "list instances", Code: "08001", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "08001")
	assert.True(t, IsStorageError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsStorageError(nil))
}

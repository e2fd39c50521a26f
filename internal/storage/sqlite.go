package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Pure Go SQLite driver (no CGO required)
	_ "modernc.org/sqlite"

	"github.com/leadengine/instance-sync/database"
	"github.com/leadengine/instance-sync/internal/instances"
)

// SQLiteStore implements Store using an embedded SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	connStr := dbPath
	if dbPath != ":memory:" {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(database.SQLiteSchema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// ListByTenant implements InstanceRepository
func (s *SQLiteStore) ListByTenant(ctx context.Context, tenantID string) ([]*instances.Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM whatsapp_instances WHERE tenant_id = ? ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, classifySQLiteError("list instances", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*instances.Instance{}
	for rows.Next() {
		inst, err := scanSQLiteInstance(rows)
		if err != nil {
			return nil, classifySQLiteError("scan instance", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError("list instances", err)
	}
	return out, nil
}

// Get implements InstanceRepository
func (s *SQLiteStore) Get(ctx context.Context, tenantID, id string) (*instances.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM whatsapp_instances WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	)
	inst, err := scanSQLiteInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifySQLiteError("get instance", err)
	}
	return inst, nil
}

// Create implements InstanceRepository
func (s *SQLiteStore) Create(ctx context.Context, inst *instances.Instance) error {
	metadata, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	now := s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO whatsapp_instances (`+instanceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.TenantID, nullString(inst.BrokerID), inst.Name, string(inst.Status), inst.Connected,
		nullString(inst.PhoneNumber), formatTime(inst.LastSeenAt), string(metadata),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return classifySQLiteError("create instance", err)
	}
	inst.CreatedAt = now
	inst.UpdatedAt = now
	return nil
}

// Update implements InstanceRepository
func (s *SQLiteStore) Update(ctx context.Context, inst *instances.Instance) error {
	metadata, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	now := s.now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE whatsapp_instances
		 SET broker_id = ?, name = ?, status = ?, connected = ?, phone_number = ?,
		     last_seen_at = ?, metadata = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		nullString(inst.BrokerID), inst.Name, string(inst.Status), inst.Connected, nullString(inst.PhoneNumber),
		formatTime(inst.LastSeenAt), string(metadata), now.Format(time.RFC3339Nano),
		inst.TenantID, inst.ID,
	)
	if err != nil {
		return classifySQLiteError("update instance", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classifySQLiteError("update instance", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	inst.UpdatedAt = now
	return nil
}

// Delete implements InstanceRepository
func (s *SQLiteStore) Delete(ctx context.Context, tenantID, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM whatsapp_instances WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return classifySQLiteError("delete instance", err)
}

// ListTenants implements InstanceRepository
func (s *SQLiteStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM whatsapp_instances ORDER BY tenant_id`)
	if err != nil {
		return nil, classifySQLiteError("list tenants", err)
	}
	defer func() { _ = rows.Close() }()

	tenants := []string{}
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, classifySQLiteError("list tenants", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, classifySQLiteError("list tenants", rows.Err())
}

// GetState implements StateStore
func (s *SQLiteStore) GetState(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM integration_states WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifySQLiteError("get state", err)
	}
	return []byte(value), true, nil
}

// GetStates implements StateStore
func (s *SQLiteStore) GetStates(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM integration_states WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, classifySQLiteError("get states", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, classifySQLiteError("scan state", err)
		}
		out[key] = []byte(value)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError("get states", err)
	}
	return out, nil
}

// PutState implements StateStore
func (s *SQLiteStore) PutState(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_states (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), s.now().UTC().Format(time.RFC3339Nano),
	)
	return classifySQLiteError("put state", err)
}

// DeleteState implements StateStore
func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM integration_states WHERE key = ?`, key)
	return classifySQLiteError("delete state", err)
}

// Ping implements Store
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return classifySQLiteError("ping", s.db.PingContext(ctx))
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteInstance(row rowScanner) (*instances.Instance, error) {
	var (
		inst                 instances.Instance
		status, metadata     string
		createdAt, updatedAt string
		brokerID, phone      sql.NullString
		lastSeenAt           sql.NullString
	)
	err := row.Scan(
		&inst.ID, &inst.TenantID, &brokerID, &inst.Name, &status, &inst.Connected,
		&phone, &lastSeenAt, &metadata, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Status = instances.Status(status)
	if brokerID.Valid {
		inst.BrokerID = &brokerID.String
	}
	if phone.Valid {
		inst.PhoneNumber = &phone.String
	}
	if lastSeenAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastSeenAt.String); err == nil {
			inst.LastSeenAt = &t
		}
	}
	inst.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	inst.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &inst.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", inst.ID, err)
		}
	}
	return &inst, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var _ Store = (*SQLiteStore)(nil)

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadengine/instance-sync/internal/instances"
)

const instanceColumns = `id, tenant_id, broker_id, name, status, connected, phone_number, last_seen_at, metadata, created_at, updated_at`

// PostgresStore implements Store on top of a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The schema is managed by the migrate command.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ListByTenant implements InstanceRepository
func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*instances.Instance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+instanceColumns+` FROM whatsapp_instances WHERE tenant_id = $1 ORDER BY id`,
		tenantID,
	)
	if err != nil {
		return nil, classifyPgError("list instances", err)
	}
	defer rows.Close()

	out := []*instances.Instance{}
	for rows.Next() {
		inst, err := scanPgInstance(rows)
		if err != nil {
			return nil, classifyPgError("scan instance", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("list instances", err)
	}
	return out, nil
}

// Get implements InstanceRepository
func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*instances.Instance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM whatsapp_instances WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	inst, err := scanPgInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPgError("get instance", err)
	}
	return inst, nil
}

// Create implements InstanceRepository
func (s *PostgresStore) Create(ctx context.Context, inst *instances.Instance) error {
	metadata, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO whatsapp_instances (`+instanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		 RETURNING created_at, updated_at`,
		inst.ID, inst.TenantID, inst.BrokerID, inst.Name, string(inst.Status), inst.Connected,
		inst.PhoneNumber, inst.LastSeenAt, metadata,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	return classifyPgError("create instance", err)
}

// Update implements InstanceRepository
func (s *PostgresStore) Update(ctx context.Context, inst *instances.Instance) error {
	metadata, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`UPDATE whatsapp_instances
		 SET broker_id = $3, name = $4, status = $5, connected = $6, phone_number = $7,
		     last_seen_at = $8, metadata = $9, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING created_at, updated_at`,
		inst.TenantID, inst.ID, inst.BrokerID, inst.Name, string(inst.Status), inst.Connected,
		inst.PhoneNumber, inst.LastSeenAt, metadata,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return classifyPgError("update instance", err)
}

// Delete implements InstanceRepository
func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM whatsapp_instances WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	return classifyPgError("delete instance", err)
}

// ListTenants implements InstanceRepository
func (s *PostgresStore) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM whatsapp_instances ORDER BY tenant_id`)
	if err != nil {
		return nil, classifyPgError("list tenants", err)
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classifyPgError("list tenants", err)
	}
	return tenants, nil
}

// GetState implements StateStore
func (s *PostgresStore) GetState(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM integration_states WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifyPgError("get state", err)
	}
	return value, true, nil
}

// GetStates implements StateStore
func (s *PostgresStore) GetStates(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT key, value FROM integration_states WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, classifyPgError("get states", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, classifyPgError("scan state", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("get states", err)
	}
	return out, nil
}

// PutState implements StateStore
func (s *PostgresStore) PutState(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO integration_states (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, json.RawMessage(value),
	)
	return classifyPgError("put state", err)
}

// DeleteState implements StateStore
func (s *PostgresStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM integration_states WHERE key = $1`, key)
	return classifyPgError("delete state", err)
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	return classifyPgError("ping", s.pool.Ping(ctx))
}

// Close implements Store
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgInstance(row pgx.Row) (*instances.Instance, error) {
	var (
		inst       instances.Instance
		status     string
		metadata   []byte
		lastSeenAt *time.Time
	)
	err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.BrokerID, &inst.Name, &status, &inst.Connected,
		&inst.PhoneNumber, &lastSeenAt, &metadata, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.Status = instances.Status(status)
	inst.LastSeenAt = lastSeenAt
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &inst.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", inst.ID, err)
		}
	}
	return &inst, nil
}

var _ Store = (*PostgresStore)(nil)

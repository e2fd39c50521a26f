package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(migrationsFS, down)
		assert.NoError(t, err, "missing down migration for %s", up)
	}
}

func TestSQLiteSchemaDeclaresTables(t *testing.T) {
	t.Parallel()

	schema := SQLiteSchema()
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS whatsapp_instances")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS integration_states")
}

func TestToMigrateURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", toMigrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", toMigrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://already", toMigrateURL("pgx5://already"))
}

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations_FromEmptySchema(t *testing.T) {
	pending, err := embeddedMigrations(0)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	first := pending[0]
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, "migrations/00001_init.sql", first.Source)
	assert.Contains(t, first.SQL, "CREATE TABLE IF NOT EXISTS subscription_items")
	assert.Contains(t, first.SQL, "carried_overage")
	assert.NotContains(t, first.SQL, "DROP TABLE", "dry run shows only the Up section")

	for i := 1; i < len(pending); i++ {
		assert.Greater(t, pending[i].Version, pending[i-1].Version)
	}
}

func TestEmbeddedMigrations_NothingPendingAtLatest(t *testing.T) {
	all, err := embeddedMigrations(0)
	require.NoError(t, err)

	pending, err := embeddedMigrations(all[len(all)-1].Version)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

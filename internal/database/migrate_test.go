package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgrid/tenancy-plane/internal/tenantctx"
)

func TestLoadMigrationsOrdering(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("CREATE TABLE b ();")},
		"0001_first.sql":  {Data: []byte("CREATE TABLE a ();")},
		"0010_tenth.sql":  {Data: []byte("CREATE TABLE c ();")},
		"notes.txt":       {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, "0001_first.sql", migrations[0].Version)
	assert.Equal(t, "0002_second.sql", migrations[1].Version)
	assert.Equal(t, "0010_tenth.sql", migrations[2].Version)
	assert.Equal(t, "CREATE TABLE a ();", migrations[0].SQL)
}

func TestLoadMigrationsEmptySet(t *testing.T) {
	migrations, err := LoadMigrations(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestPending(t *testing.T) {
	migrations := []Migration{
		{Version: "0001_first.sql"},
		{Version: "0002_second.sql"},
		{Version: "0003_third.sql"},
	}

	t.Run("never migrated applies everything", func(t *testing.T) {
		pending := Pending(migrations, map[string]bool{})
		require.Len(t, pending, 3)
	})

	t.Run("partially migrated applies the tail", func(t *testing.T) {
		pending := Pending(migrations, map[string]bool{"0001_first.sql": true})
		require.Len(t, pending, 2)
		assert.Equal(t, "0002_second.sql", pending[0].Version)
	})

	t.Run("at head applies nothing", func(t *testing.T) {
		pending := Pending(migrations, map[string]bool{
			"0001_first.sql": true, "0002_second.sql": true, "0003_third.sql": true,
		})
		assert.Empty(t, pending)
	})
}

func TestTargetNamespace(t *testing.T) {
	ctx := context.Background()

	// No tenant resolved: sessions bind to the control namespace. This is
	// the documented default for exempt paths and registry operations.
	assert.Equal(t, "public", targetNamespace(ctx, "public"))

	scoped := tenantctx.With(ctx, "tenant_acme", "acme")
	assert.Equal(t, "tenant_acme", targetNamespace(scoped, "public"))

	// A cleared scope falls back to control again.
	assert.Equal(t, "public", targetNamespace(tenantctx.Clear(scoped), "public"))
}

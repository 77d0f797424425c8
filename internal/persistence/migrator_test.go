package persistence_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/persistence"
	"PerpClearing/migrations"
)

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"000001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("docs")},
	}

	files, err := persistence.ListMigrations(fsys, ".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, files)

	assert.Equal(t, "000002", persistence.ExtractVersion(files[1]))
}

func TestEmbeddedMigrationsPaired(t *testing.T) {
	ups, err := persistence.ListMigrations(migrations.FS, ".up.sql")
	require.NoError(t, err)
	downs, err := persistence.ListMigrations(migrations.FS, ".down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
	for i := range ups {
		assert.Equal(t, persistence.ExtractVersion(ups[i]), persistence.ExtractVersion(downs[i]))
	}
}

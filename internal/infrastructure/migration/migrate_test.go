package migration

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAvailable(t *testing.T) {
	t.Run("lists up migrations in version order", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"20250101000100_create_read_models.up.sql",
			"20250101000100_create_read_models.down.sql",
			"20250101000000_create_event_store.up.sql",
			"20250101000000_create_event_store.down.sql",
			"README.md",
			"notaversion_x.up.sql",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "20250101000200_dir.up.sql"), 0o755))

		versions, err := Available(dir)
		require.NoError(t, err)
		assert.Equal(t, []uint{20250101000000, 20250101000100}, versions)
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		versions, err := Available(filepath.Join(t.TempDir(), "missing"))
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("repository migrations are paired", func(t *testing.T) {
		dir := filepath.Join("..", "..", "..", "migrations")
		versions, err := Available(dir)
		require.NoError(t, err)
		require.NotEmpty(t, versions)
		for _, v := range versions {
			matches, err := filepath.Glob(filepath.Join(dir, formatVersion(v)+"_*.down.sql"))
			require.NoError(t, err)
			assert.Len(t, matches, 1, "version %d has no down migration", v)
		}
	})
}

func TestPending(t *testing.T) {
	available := []uint{1, 2, 3}
	assert.Equal(t, 3, Pending(available, 0))
	assert.Equal(t, 1, Pending(available, 2))
	assert.Equal(t, 0, Pending(available, 3))
	assert.Equal(t, 0, Pending(nil, 0))
}

func TestZapMigrateLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &zapMigrateLogger{logger: zap.New(core)}

	assert.True(t, l.Verbose())
	l.Printf("applied %d\n", 3)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "applied 3", logs.All()[0].Message)

	quiet := &zapMigrateLogger{logger: zap.NewNop()}
	assert.False(t, quiet.Verbose())
}

func formatVersion(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

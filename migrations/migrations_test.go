package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedWithGooseSections(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_inventory.sql", "00002_procurement.sql", "00003_platform.sql"}, names)

	for _, name := range names {
		raw, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		body := string(raw)
		require.True(t, strings.HasPrefix(body, "-- +goose Up"), name)
		require.Contains(t, body, "-- +goose Down", name)
	}

	raw, err := fs.ReadFile(FS, "00002_procurement.sql")
	require.NoError(t, err)
	require.Contains(t, string(raw), "received_quantity <= quantity)")
}

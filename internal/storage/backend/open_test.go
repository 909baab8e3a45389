package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"a11ywatch/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	store, err := Open(context.Background(), config.DriverSQLite, filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongodb", "mongodb://localhost")
	require.ErrorContains(t, err, "unsupported database driver")
}

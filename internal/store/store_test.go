package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jason-s-yu/memoria/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), config.Config{Store: "MEMORY"})
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, b.Name)
	assert.NotNil(t, b.Players)
	assert.NotNil(t, b.Rankings)
	assert.NoError(t, b.Close())
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memoria.db")
	b, err := Open(context.Background(), config.Config{Store: config.StoreSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer b.Close()
	top, err := b.Rankings.TopRankings(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), config.Config{Store: "floppy"})
	assert.Error(t, err)
}

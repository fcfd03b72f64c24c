package store

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSource_EmbedsCatalogSchema(t *testing.T) {
	src, err := migrationSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_catalog", identifier)

	body, err := io.ReadAll(up)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS products.products")
	assert.Contains(t, string(body), "ON DELETE CASCADE")
	assert.Contains(t, string(body), "CHECK (current_price >= 0)")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

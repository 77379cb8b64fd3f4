package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add debts table", "add_debts_table"},
		{"Add-Debts-Table", "add_debts_table"},
		{"ADD_DEBTS_TABLE", "add_debts_table"},
		{"add__debts__table", "add_debts_table"},
		{"Add Tabs 123", "add_tabs_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create ledger tables", "orders, payments, debts")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_create_ledger_tables.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_create_ledger_tables.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "create ledger tables")
	assert.Contains(t, string(up), "orders, payments, debts")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	second, err := CreateMigration(dir, "add payment batch index", "")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"000002_add_index.up.sql",
		"000001_create_ledger_tables.up.sql",
		"000001_create_ledger_tables.down.sql",
		"README.md",
		"embed.go",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("--"), 0o644))
	}

	list, err := ListMigrations(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, Migration{Version: 1, Name: "create_ledger_tables", HasDown: true}, list[0])
	assert.Equal(t, Migration{Version: 2, Name: "add_index", HasDown: false}, list[1])

	t.Run("missing directory", func(t *testing.T) {
		list, err := ListMigrations(filepath.Join(dir, "nope"))
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestEmbeddedMigrationsAreListed(t *testing.T) {
	list, err := ListMigrations(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, uint(1), list[0].Version)
	for _, m := range list {
		assert.True(t, m.HasDown, "migration %d has no down file", m.Version)
	}
}

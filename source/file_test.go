package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/rota/errors"
)

func TestFileWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ward.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tabs:
  Roster:
    - [employee_id, name, role]
    - [e1, Alice, nurse]
`), 0o644))

	wb := NewFileWorkbook()
	ctx := context.Background()
	loc := Locator{Scheme: SchemeFile, Book: path, Tab: RosterTab}

	rows, err := wb.ReadTable(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"employee_id", "name", "role"}, {"e1", "Alice", "nurse"}}, rows)

	out := [][]string{{"date", "shift"}, {"2025-06-02", "D"}}
	require.NoError(t, wb.WriteTable(ctx, loc.WithTab("Schedule"), out))

	got, err := wb.ReadTable(ctx, loc.WithTab("Schedule"))
	require.NoError(t, err)
	assert.Equal(t, out, got)

	// Other tabs survive the write.
	rows, err = wb.ReadTable(ctx, loc)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFileWorkbookErrors(t *testing.T) {
	wb := NewFileWorkbook()
	ctx := context.Background()
	dir := t.TempDir()

	_, err := wb.ReadTable(ctx, Locator{Scheme: SchemeFile, Book: filepath.Join(dir, "missing.yaml"), Tab: RosterTab})
	assert.True(t, errors.Is(err, errors.ErrSourceFormat))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tabs: [not, a, map"), 0o644))
	_, err = wb.ReadTable(ctx, Locator{Scheme: SchemeFile, Book: bad, Tab: RosterTab})
	assert.True(t, errors.Is(err, errors.ErrSourceFormat))

	// Writing creates the workbook.
	fresh := Locator{Scheme: SchemeFile, Book: filepath.Join(dir, "sub", "new.yaml"), Tab: "Schedule"}
	require.NoError(t, wb.WriteTable(ctx, fresh, [][]string{{"a"}}))
	_, err = wb.ReadTable(ctx, fresh.WithTab("Nope"))
	assert.True(t, errors.Is(err, errors.ErrSourceFormat))
}

package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
	require.NoError(t, ValidateFS(Embedded()))
}

func TestEmbeddedMatchesDirectory(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	compiled, err := fs.Glob(Embedded(), "*.sql")
	require.NoError(t, err)
	require.Len(t, compiled, len(onDisk))
}

func TestCreateSQLMigrationProducesValidFile(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Report Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_report_index.sql"))
	require.NoError(t, ValidateDir(dir))
}

func TestCreateRefusesExistingVersion(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	_, err := createAt(dir, "first", at)
	require.NoError(t, err)
	_, err = createAt(dir, "first", at)
	require.Error(t, err)
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {"broken.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"no down": {"20250101000000_no_down.sql": {Data: []byte("-- +goose Up\nSELECT 1;")}},
		"unbalanced": {"20250101000000_unbalanced.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")}},
		"duplicate version": {
			"20250101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20250101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidateFS(fsys))
		})
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_ok.sql"), []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"), 0o644))
	require.NoError(t, ValidateDir(dir))
}

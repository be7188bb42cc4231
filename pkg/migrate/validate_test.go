package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThenValidate(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "add_widgets")
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, ValidateDir(dir))
}

func TestCreateRejectsBadNames(t *testing.T) {
	dir := t.TempDir()

	_, err := CreateSQLMigration(dir, "Add Widgets")
	assert.Error(t, err)
	_, err = CreateSQLMigration(dir, "")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadFilenames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_short.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	assert.Error(t, ValidateDir(dir))
}

func TestValidateDirRequiresGooseMarkers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "20250101000000_missing_down.sql"),
		[]byte("-- +goose Up\nSELECT 1;\n"),
		0o644,
	))

	assert.Error(t, ValidateDir(dir))
}

func TestValidateShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var migrationNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 1;
-- +goose StatementEnd
`

// CreateSQLMigration writes a timestamped goose migration skeleton.
func CreateSQLMigration(dir, name string) (string, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if !migrationNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid migration name %q (use lowercase letters, digits, underscores)", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating migrations dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.sql", time.Now().UTC().Format("20060102150405"), name)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(migrationTemplate), 0o644); err != nil {
		return "", fmt.Errorf("writing migration: %w", err)
	}
	return path, nil
}

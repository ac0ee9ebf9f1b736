package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: forward statements
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- %[1]s: rollback statements
-- +goose StatementEnd
`

// migrationFileName turns a free-form label into <version>_<snake_name>.sql.
func migrationFileName(now time.Time, label string) (string, error) {
	slug := unsafeNameChars.ReplaceAllString(strings.ToLower(label), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", label)
	}
	return now.UTC().Format(versionLayout) + "_" + slug + ".sql", nil
}

// CreateSQLMigration writes an empty goose migration into dir and returns its
// path. An existing file is never overwritten.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" || dir == EmbeddedDir {
		return "", errors.New("an on-disk migrations dir is required")
	}
	fileName, err := migrationFileName(time.Now(), name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}

	fullPath := filepath.Join(dir, fileName)
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	slug := strings.TrimSuffix(fileName[len(versionLayout)+1:], ".sql")
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %q: %w", fullPath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", fullPath, err)
	}
	return fullPath, nil
}

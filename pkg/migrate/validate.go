package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredAnnotations = []string{"-- +goose Up", "-- +goose Down"}

// Validate checks the embedded migrations: names, unique versions and both
// goose annotations. Every problem is reported, not just the first.
func Validate() error {
	return validateFS(migrationsFS, Dir)
}

func validateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var problems error
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if first, dup := versions[match[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, match[1], first))
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, annotation := range requiredAnnotations {
			if !strings.Contains(string(body), annotation) {
				problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, annotation))
			}
		}
	}
	return problems
}

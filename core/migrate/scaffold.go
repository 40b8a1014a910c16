package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const scaffoldTemplate = `package migrate

import "database/sql"

// %[3]s %[4]s.
// Register this migration in AllMigrations.
func %[3]s() Migration {
	return Migration{
		Version:     %[1]d,
		Description: %[2]q,
		Up: func(tx *sql.Tx) error {
			return execEach(tx)
		},
		Down: func(tx *sql.Tx) error {
			return execEach(tx)
		},
	}
}
`

// Scaffold writes a descriptor file for the next migration version into
// dir and returns its path. The file compiles as-is; the author fills in
// the statements and registers the constructor.
func Scaffold(dir, name string, reg Registry) (string, error) {
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	next := reg.MaxVersion() + 1
	funcName := fmt.Sprintf("migration%d%s", next, camelize(slug))
	path := filepath.Join(dir, fmt.Sprintf("migration_%d_%s.go", next, slug))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration file %s already exists", path)
	}
	content := fmt.Sprintf(scaffoldTemplate, next, strings.ReplaceAll(slug, "_", " "), funcName, strings.ReplaceAll(slug, "_", " "))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write migration file: %w", err)
	}
	return path, nil
}

func slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

func camelize(slug string) string {
	parts := strings.Split(slug, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

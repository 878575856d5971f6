package chatsync

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MigrationFiles contains the SQL schema for every supported driver, one
// directory per driver name:
//
//	migrations/sqlite3/*.sql
//	migrations/postgres/*.sql
//	migrations/mysql/*.sql
//
// Files are applied in name order. Statements inside a file are separated by
// a line containing only "-- statement". All statements are idempotent, so
// applying the set again is a no-op.
//
// The files name every object after DefaultTablePrefix (chat_messages,
// idx_chat_messages_*, the chat_messages NOTIFY channel and trigger).
// ApplyMigrationsWithPrefix rewrites those names for another prefix.
//
//go:embed migrations/*/*.sql
var MigrationFiles embed.FS

const statementSeparator = "-- statement"

// DefaultTablePrefix is the table prefix of the embedded schema.
const DefaultTablePrefix = "chat_"

// MessagesTable is the unprefixed name of the messages table.
const MessagesTable = "messages"

var tablePrefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTablePrefix checks that prefix can be spliced into SQL identifiers.
func ValidateTablePrefix(prefix string) error {
	err := validation.Validate(prefix,
		validation.Required,
		validation.Length(1, 32),
		validation.Match(tablePrefixPattern),
	)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, fmt.Sprintf("invalid table prefix %q", prefix), err)
	}
	return nil
}

// ApplyMigrations runs the embedded migrations for driver against db.
func ApplyMigrations(ctx context.Context, db *sql.DB, driver string) error {
	return ApplyMigrationsWithPrefix(ctx, db, driver, DefaultTablePrefix)
}

// ApplyMigrationsWithPrefix runs the embedded migrations with every object
// named after prefix instead of DefaultTablePrefix.
func ApplyMigrationsWithPrefix(ctx context.Context, db *sql.DB, driver, prefix string) error {
	if err := ValidateTablePrefix(prefix); err != nil {
		return err
	}
	dir := path.Join("migrations", driver)

	names, err := fs.Glob(MigrationFiles, path.Join(dir, "*.sql"))
	if err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, "failed to list migrations", err)
	}
	if len(names) == 0 {
		return NewError(ErrCodeConfiguration, fmt.Sprintf("no migrations for driver %q", driver))
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := MigrationFiles.ReadFile(name)
		if err != nil {
			return NewErrorWithCause(ErrCodeConfiguration, "failed to read migration "+name, err)
		}

		schema := strings.ReplaceAll(string(body), DefaultTablePrefix+MessagesTable, prefix+MessagesTable)
		for i, stmt := range splitStatements(schema) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return NewErrorWithCause(ErrCodeDatabase,
					fmt.Sprintf("migration %s statement %d failed", path.Base(name), i+1), err)
			}
		}
	}

	return nil
}

func splitStatements(body string) []string {
	var stmts []string
	var current []string

	flush := func() {
		stmt := strings.TrimSpace(strings.Join(current, "\n"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == statementSeparator {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return stmts
}

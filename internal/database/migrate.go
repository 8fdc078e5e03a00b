package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// Migration is one ordered schema change. Versions are file names, applied
// in lexical order.
type Migration struct {
	Version string
	SQL     string
}

// Migrator applies a migration set inside whatever namespace the given
// session is scoped to. The schema_migrations bookkeeping table is created
// unqualified, so every namespace tracks its own version independently.
type Migrator struct {
	files fs.FS
}

func NewMigrator(files fs.FS) *Migrator {
	return &Migrator{files: files}
}

// Load reads and orders the migration set.
func (m *Migrator) Load() ([]Migration, error) {
	return LoadMigrations(m.files)
}

func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migration files: %w", err)
	}
	sort.Strings(entries)

	migrations := make([]Migration, 0, len(entries))
	for _, name := range entries {
		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: name, SQL: string(sql)})
	}
	return migrations, nil
}

// Pending filters a migration set down to the versions not yet applied.
func Pending(migrations []Migration, applied map[string]bool) []Migration {
	var pending []Migration
	for _, mig := range migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending
}

// Apply brings the session's namespace to head. Each migration step runs in
// its own transaction and records its version in the same transaction, so a
// failing step leaves the namespace at the last fully applied version.
func (m *Migrator) Apply(ctx context.Context, sess *Session) error {
	migrations, err := m.Load()
	if err != nil {
		return err
	}

	_, err = sess.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, sess)
	if err != nil {
		return err
	}

	for _, mig := range Pending(migrations, applied) {
		if err := applyOne(ctx, sess, mig); err != nil {
			return err
		}
		slog.Info("applied migration", "version", mig.Version, "namespace", sess.Namespace)
	}

	return nil
}

func appliedVersions(ctx context.Context, sess *Session) (map[string]bool, error) {
	rows, err := sess.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyOne(ctx context.Context, sess *Session, mig Migration) (err error) {
	if err = sess.Begin(ctx); err != nil {
		return fmt.Errorf("begin tx for %s: %w", mig.Version, err)
	}
	defer func() {
		if finishErr := sess.finishTx(ctx, err); finishErr != nil && err == nil {
			err = finishErr
		}
	}()

	if _, err = sess.Exec(ctx, mig.SQL); err != nil {
		return fmt.Errorf("execute migration %s: %w", mig.Version, err)
	}
	if _, err = sess.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", mig.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", mig.Version, err)
	}
	return nil
}

// CurrentVersion reports the newest applied version in the session's
// namespace, or "" when the namespace has never been migrated.
func (m *Migrator) CurrentVersion(ctx context.Context, sess *Session) (string, error) {
	var exists bool
	err := sess.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = 'schema_migrations'
		)`, sess.Namespace,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("probe migrations table: %w", err)
	}
	if !exists {
		return "", nil
	}

	var version string
	err = sess.QueryRow(ctx, "SELECT COALESCE(MAX(version), '') FROM schema_migrations").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("read current version: %w", err)
	}
	return strings.TrimSpace(version), nil
}

// Package database opens the profile database and applies schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/database/migrations"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

const createVersionTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP    NOT NULL
	)
`

// Migrator applies plain .up.sql migrations in lexical order and records
// each applied file in schema_migrations.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *sql.DB, log *slog.Logger) *Migrator {
	return &Migrator{
		db:  db,
		log: log,
	}
}

func (m *Migrator) baseLogger() *slog.Logger {
	if m.log != nil {
		return m.log
	}

	l, _ := logger.New(config.LoggerConfig{Level: "info", Format: "text"}, false)
	m.log = l.With(slog.String("component", "migrator"))
	return m.log
}

// ApplyEmbedded applies the migrations compiled into the binary.
func (m *Migrator) ApplyEmbedded(ctx context.Context) ([]string, error) {
	return m.Apply(ctx, migrations.FS, ".")
}

// ApplyDir applies migrations from a directory on disk.
func (m *Migrator) ApplyDir(ctx context.Context, dir string) ([]string, error) {
	return m.Apply(ctx, os.DirFS(dir), ".")
}

// Apply runs every pending migration under root and returns the versions
// applied by this call.
func (m *Migrator) Apply(ctx context.Context, fsys fs.FS, root string) ([]string, error) {
	baseLog := m.baseLogger().With(slog.String("root", root))

	files, err := ListMigrations(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		baseLog.Info("no .up.sql migrations found")
		return nil, nil
	}

	if _, err := m.db.ExecContext(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(done))
	for _, v := range done {
		seen[v] = struct{}{}
	}

	var applied []string
	for _, name := range files {
		if _, ok := seen[name]; ok {
			continue
		}
		if err := m.applyFile(ctx, baseLog, fsys, path.Join(root, name), name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}

	baseLog.Info("migrations up to date", slog.Int("applied", len(applied)), slog.Int("total", len(files)))
	return applied, nil
}

// Applied lists recorded migration versions in order.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

func (m *Migrator) applyFile(ctx context.Context, baseLog *slog.Logger, fsys fs.FS, filePath, version string) error {
	scopedLog := baseLog.With(slog.String("file", version))
	scopedLog.Info("applying migration")

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return fmt.Errorf("read migration %q: %w", filePath, err)
	}

	statements := splitStatements(string(data))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %q: %w", version, err)
	}

	for _, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				scopedLog.Error("rollback error", "error", rbErr)
			}
			return fmt.Errorf("execute migration %q: %w", version, execErr)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
		version, time.Now().UTC(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %q: %w", version, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %q: %w", version, commitErr)
	}

	return nil
}

// splitStatements breaks a migration into single statements. Migrations
// must not contain semicolons inside literals.
func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

// ListMigrations returns all .up.sql files in dir in lexical order.
func ListMigrations(dir fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(dir, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

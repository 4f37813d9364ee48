package db

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/rota/errors"
	"github.com/teranos/rota/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema change. Version is the numeric file
// prefix; 000 creates schema_migrations itself.
type Migration struct {
	Version string
	Name    string
}

func embedded() ([]Migration, error) {
	names, err := fs.Glob(migrations, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, errors.Wrap(err, "list migrations")
	}
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		version, _, ok := strings.Cut(base, "_")
		if !ok {
			return nil, errors.AssertionFailedf("migration %s has no version prefix", base)
		}
		out = append(out, Migration{Version: version, Name: base})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// applied returns recorded versions. A database without schema_migrations
// has nothing applied.
func applied(db *sql.DB) (map[string]bool, error) {
	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&n); err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	done := make(map[string]bool)
	if n == 0 {
		return done, nil
	}
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		done[v] = true
	}
	return done, rows.Err()
}

// Pending lists the embedded migrations not yet applied to db, oldest first.
func Pending(db *sql.DB) ([]Migration, error) {
	all, err := embedded()
	if err != nil {
		return nil, err
	}
	done, err := applied(db)
	if err != nil {
		return nil, err
	}
	var todo []Migration
	for _, m := range all {
		if !done[m.Version] {
			todo = append(todo, m)
		}
	}
	return todo, nil
}

// Migrate applies pending migrations, each in its own transaction together
// with its schema_migrations row.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	log = logger.OrNop(log)
	todo, err := Pending(db)
	if err != nil {
		return err
	}
	for _, m := range todo {
		if err := apply(db, m); err != nil {
			return err
		}
		log.Infow("Applied migration", "migration", m.Name, "version", m.Version)
	}
	log.Debugw("Schema up to date", "applied", len(todo))
	return nil
}

func apply(db *sql.DB, m Migration) error {
	body, err := migrations.ReadFile(path.Join(migrationsDir, m.Name))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.Name)
	}
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", m.Name)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.Name)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return errors.Wrapf(err, "record %s", m.Name)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.Name)
}

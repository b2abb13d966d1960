package postgres

import (
	"context"
	"embed"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

var gooseSetup sync.Once

// Migration is one embedded schema change
type Migration struct {
	Version int64
	Source  string
	SQL     string
}

func (db *DB) setupGoose() error {
	var err error
	gooseSetup.Do(func() {
		goose.SetBaseFS(migrationFiles)
		goose.SetLogger(db.logger.GooseLogger())
		err = goose.SetDialect("postgres")
	})
	return err
}

// PendingMigrations returns the embedded migrations newer than the version
// goose has recorded, oldest first
func (db *DB) PendingMigrations(ctx context.Context) ([]Migration, error) {
	if err := db.setupGoose(); err != nil {
		return nil, errors.Wrap(err, "configuring goose")
	}

	current, err := goose.GetDBVersionContext(ctx, db.DB.DB)
	if err != nil {
		return nil, errors.Wrap(err, "reading schema version")
	}
	return embeddedMigrations(current)
}

// Migrate applies every pending migration
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.setupGoose(); err != nil {
		return errors.Wrap(err, "configuring goose")
	}
	if err := goose.UpContext(ctx, db.DB.DB, migrationsDir); err != nil {
		return errors.Wrap(err, "applying migrations")
	}
	return nil
}

// embeddedMigrations lists the embedded migrations above current with the SQL
// of their Up section
func embeddedMigrations(current int64) ([]Migration, error) {
	goose.SetBaseFS(migrationFiles)

	collected, err := goose.CollectMigrations(migrationsDir, current, goose.MaxVersion)
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrationFiles) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "collecting migrations")
	}

	pending := make([]Migration, 0, len(collected))
	for _, m := range collected {
		body, err := migrationFiles.ReadFile(m.Source)
		if err != nil {
			return nil, errors.Wrapf(err, "reading migration %d", m.Version)
		}
		up, _, _ := strings.Cut(string(body), "-- +goose Down")
		pending = append(pending, Migration{
			Version: m.Version,
			Source:  m.Source,
			SQL:     strings.TrimSpace(strings.TrimPrefix(up, "-- +goose Up")),
		})
	}
	return pending, nil
}

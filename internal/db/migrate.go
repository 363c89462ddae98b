package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/telemetry.receiver/internal/monitoring"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the schema migrations compiled into the binary.
func MigrationsFS() (fs.FS, error) {
	return fs.Sub(embeddedMigrations, "migrations")
}

// MigrateUp applies every pending migration. Already being at the latest
// version is not an error.
func (db *DB) MigrateUp(migrationsFS fs.FS) error {
	return db.migrate(migrationsFS, "up", (*migrate.Migrate).Up)
}

// MigrateDown reverts the most recently applied migration.
func (db *DB) MigrateDown(migrationsFS fs.FS) error {
	return db.migrate(migrationsFS, "down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateTo moves the schema up or down to version.
func (db *DB) MigrateTo(migrationsFS fs.FS, version uint) error {
	return db.migrate(migrationsFS, fmt.Sprintf("to version %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

// MigrateForce records version as applied without running anything. Only
// for recovering a dirty schema by hand.
func (db *DB) MigrateForce(migrationsFS fs.FS, version int) error {
	return db.migrate(migrationsFS, fmt.Sprintf("force to version %d", version), func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// MigrateVersion reports the applied version and whether the last migration
// failed halfway. A database with no migrations reports version 0.
func (db *DB) MigrateVersion(migrationsFS fs.FS) (uint, bool, error) {
	var version uint
	var dirty bool
	err := db.withMigrator(migrationsFS, func(m *migrate.Migrate) error {
		var err error
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		return err
	})
	return version, dirty, err
}

// LatestMigrationVersion returns the highest NNNNNN_name.up.sql version in
// migrationsFS.
func LatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	files, err := fs.Glob(migrationsFS, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}

	var latest uint
	for _, f := range files {
		prefix, _, ok := strings.Cut(path.Base(f), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err == nil && uint(v) > latest {
			latest = uint(v)
		}
	}
	if latest == 0 {
		return 0, errors.New("no migration files found")
	}
	return latest, nil
}

func (db *DB) migrate(migrationsFS fs.FS, what string, step func(*migrate.Migrate) error) error {
	return db.withMigrator(migrationsFS, func(m *migrate.Migrate) error {
		if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %s: %w", what, err)
		}
		return nil
	})
}

// withMigrator builds a migrator on the open connection. The migrator is
// never closed since that would close db.DB as well.
func (db *DB) withMigrator(migrationsFS fs.FS, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("failed to open migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLog{}
	return fn(m)
}

type migrateLog struct{}

// Printf drops the trailing newline migrate puts on every message.
func (migrateLog) Printf(format string, v ...any) {
	monitoring.Logf("[migrate] "+strings.TrimSuffix(format, "\n"), v...)
}

func (migrateLog) Verbose() bool { return false }

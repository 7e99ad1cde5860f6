package catalog

import (
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaVersion is the newest migration shipped with this build.
const SchemaVersion uint = 2

var (
	// ErrSchemaTooNew is returned when the catalog was migrated by a newer
	// build than this one.
	ErrSchemaTooNew = errors.New("catalog schema is newer than this build")

	// ErrDirty is returned when a previous migration failed halfway.
	ErrDirty = errors.New("catalog schema is dirty")
)

// Migrator moves a catalog database between schema versions.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens the catalog at dbPath for migration.
func NewMigrator(dbPath string) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+sqliteURLPath(dbPath))
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// sqliteURLPath turns a file path into the path part of a sqlite:// URL.
// Windows drive paths get a leading slash.
func sqliteURLPath(p string) string {
	s := filepath.ToSlash(p)
	if filepath.IsAbs(p) && !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

// Version returns the applied schema version, 0 for a fresh catalog.
func (mg *Migrator) Version() (uint, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w at version %d", ErrDirty, v)
	}
	return v, nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error {
	v, err := mg.Version()
	if err != nil {
		return err
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: catalog at %d, build supports %d", ErrSchemaTooNew, v, SchemaVersion)
	}
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// To migrates up or down to version.
func (mg *Migrator) To(version uint) error {
	if version > SchemaVersion {
		return fmt.Errorf("%w: requested %d, build supports %d", ErrSchemaTooNew, version, SchemaVersion)
	}
	if version == 0 {
		err := mg.m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to revert migrations: %w", err)
		}
		return nil
	}
	if err := mg.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate to version %d: %w", version, err)
	}
	return nil
}

// Close releases the migration source and database.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// migrateUp brings the catalog at dbPath to SchemaVersion.
func migrateUp(dbPath string) (err error) {
	mg, err := NewMigrator(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, mg.Close())
	}()
	return mg.Up()
}

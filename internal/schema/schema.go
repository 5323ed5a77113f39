// Package schema applies the embedded postgres migrations.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrUnsupportedDatabaseURL is returned for non-postgres connection strings.
var ErrUnsupportedDatabaseURL = errors.New("schema: migrations require a postgres url")

// Direction selects which way migrations run.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection validates a CLI direction argument.
func ParseDirection(raw string) (Direction, error) {
	switch direction := Direction(strings.ToLower(strings.TrimSpace(raw))); direction {
	case DirectionUp, DirectionDown:
		return direction, nil
	default:
		return "", fmt.Errorf("schema: unknown direction %q", raw)
	}
}

// Apply runs every pending migration in the given direction.
// Running with nothing to do is not an error.
func Apply(databaseURL string, direction Direction) error {
	if !IsPostgresURL(databaseURL) {
		return ErrUnsupportedDatabaseURL
	}
	source, err := iofs.New(migrationFiles, migrationsDir)
	if err != nil {
		return fmt.Errorf("schema: open migrations: %w", err)
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("schema: init migrator: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	switch direction {
	case DirectionUp:
		err = migrator.Up()
	case DirectionDown:
		err = migrator.Down()
	default:
		return fmt.Errorf("schema: unknown direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema: migrate %s: %w", direction, err)
	}
	return nil
}

// IsPostgresURL reports whether databaseURL targets postgres.
func IsPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

// Files lists the embedded migration file names in order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, migrationsDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(test *testing.T) {
	test.Parallel()
	names, err := Files()
	if err != nil {
		test.Fatalf("files: %v", err)
	}
	if len(names) == 0 || len(names)%2 != 0 {
		test.Fatalf("expected paired migrations, got %v", names)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			test.Fatalf("unexpected migration file %s", name)
		}
	}
	for version := range ups {
		if !downs[version] {
			test.Fatalf("missing down migration for %s", version)
		}
	}
}

func TestInitMigrationDeclaresOccupancyKey(test *testing.T) {
	test.Parallel()
	contents, err := migrationFiles.ReadFile("migrations/0001_init.up.sql")
	if err != nil {
		test.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(contents), "uniq_slots_occupied") {
		test.Fatalf("expected occupancy unique index in init migration")
	}
}

func TestApplyRejectsNonPostgresURL(test *testing.T) {
	test.Parallel()
	err := Apply("sqlite:///tmp/courtbook.db", DirectionUp)
	if !errors.Is(err, ErrUnsupportedDatabaseURL) {
		test.Fatalf("expected ErrUnsupportedDatabaseURL, got %v", err)
	}
}

func TestParseDirection(test *testing.T) {
	test.Parallel()
	direction, err := ParseDirection(" UP ")
	if err != nil || direction != DirectionUp {
		test.Fatalf("expected up, got %q (%v)", direction, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		test.Fatalf("expected error for unknown direction")
	}
}

package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/excalidraw-organizer/backend/internal/catalog"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "organizer.db")

	db, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	for _, table := range []string{"folders", "canvases", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %q to exist", table)
		}
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "organizer.db")

	first, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	folder := catalog.Folder{Name: "Default", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	if err := first.Create(&folder).Error; err != nil {
		t.Fatalf("failed to insert folder: %v", err)
	}
	sqlDB, err := first.DB()
	if err != nil {
		t.Fatalf("failed to unwrap connection: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close connection: %v", err)
	}

	second, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to reopen sqlite: %v", err)
	}
	var stored catalog.Folder
	if err := second.Where("id = ?", folder.ID).Take(&stored).Error; err != nil {
		t.Fatalf("failed to reload folder: %v", err)
	}
	if stored.Name != "Default" {
		t.Fatalf("unexpected folder name %q", stored.Name)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestApplyMigrationsRecordsEachRun(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "organizer.db")
	db, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	applied := 0
	registered := []migrationDefinition{{
		name: "test_backfill",
		apply: func(*gorm.DB) error {
			applied++
			return nil
		},
	}}
	previous := registeredMigrations
	registeredMigrations = registered
	defer func() { registeredMigrations = previous }()

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to re-apply migrations: %v", err)
	}

	if applied != 1 {
		t.Fatalf("expected migration to run exactly once, ran %d times", applied)
	}
	var record migrationRecord
	if err := db.Where("name = ?", "test_backfill").Take(&record).Error; err != nil {
		t.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatal("expected migration timestamp to be set")
	}
}

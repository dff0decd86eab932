package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// migrationsDir points at the real migration files so these tests validate
// the schema the application actually deploys.
const migrationsDir = "../../migrations"

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DatabasePath != "./data/classpulse.db" {
		t.Errorf("Expected DatabasePath './data/classpulse.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.MigrationsPath != "./migrations" {
		t.Errorf("Expected MigrationsPath './migrations', got %s", config.MigrationsPath)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero conn lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }, true},
		{"empty migrations path", func(c *Config) { c.MigrationsPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrationManager_ApplyMigrations(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, migrationsDir)

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	var version string
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version LIMIT 1").Scan(&version)
	if err != nil {
		t.Fatalf("Failed to read schema_migrations: %v", err)
	}
	if version != "001" {
		t.Errorf("Expected version 001 recorded, got %s", version)
	}

	// Re-applying is a no-op.
	if err := manager.ApplyMigrations(); err != nil {
		t.Errorf("Second ApplyMigrations should succeed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 recorded migration after re-apply, got %d", count)
	}
}

func TestMigrationManager_ApplyMigrationsMissingDir(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, "/no/such/migrations")

	if err := manager.ApplyMigrations(); err == nil {
		t.Error("Expected error for missing migrations directory")
	}
}

func TestMigrationManager_ValidateSchema(t *testing.T) {
	db := openTestDB(t)
	manager := NewMigrationManager(db, migrationsDir)

	if err := manager.ValidateSchema(); err == nil {
		t.Error("ValidateSchema should fail on an empty database")
	}

	if err := manager.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	if err := manager.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema failed on migrated database: %v", err)
	}
}

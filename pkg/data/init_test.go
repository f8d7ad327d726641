package data

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitDuckDB(t *testing.T) {
	tests := []struct {
		name string
		path func(dir string) string
	}{
		{"flat path", func(dir string) string { return filepath.Join(dir, "mdbulk.db") }},
		{"missing parent directories", func(dir string) string { return filepath.Join(dir, "nested", "data", "mdbulk.db") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := tt.path(t.TempDir())

			// Opening twice must not fail on the existing schema
			for range 2 {
				db, err := InitDuckDB(dbPath)
				if err != nil {
					t.Fatalf("InitDuckDB() error = %v", err)
				}

				var tables int
				err = db.QueryRow(`SELECT COUNT(*) FROM information_schema.tables WHERE table_name IN ('edit_snapshots', 'saved_logins')`).Scan(&tables)
				db.Close()
				if err != nil {
					t.Fatalf("Failed to query tables: %v", err)
				}
				if tables != 2 {
					t.Errorf("Expected 2 tables, got %d", tables)
				}
			}

			if _, err := os.Stat(dbPath); err != nil {
				t.Errorf("DB file was not created: %v", err)
			}
		})
	}
}

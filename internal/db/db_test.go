package db

import (
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"clips", "tracks", "placements", "playhead", "config", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}
}

func TestPlacementsCascadeWithTrack(t *testing.T) {
	tmpDir := t.TempDir()

	database, err := New(filepath.Join(tmpDir, "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	if _, err := conn.Exec(`INSERT INTO tracks (id, kind, name, position) VALUES ('t1', 'main', 'V1', 0)`); err != nil {
		t.Fatalf("insert track: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO placements (instance_id, track_id, source_clip_id, trim_in, trim_out, position)
		VALUES ('p1', 't1', 'c1', 0, 5, 0)`); err != nil {
		t.Fatalf("insert placement: %v", err)
	}
	if _, err := conn.Exec(`DELETE FROM tracks WHERE id = 't1'`); err != nil {
		t.Fatalf("delete track: %v", err)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM placements").Scan(&count); err != nil {
		t.Fatalf("count placements: %v", err)
	}
	if count != 0 {
		t.Errorf("placements after track delete = %d, want 0", count)
	}
}

func TestPlacementsRejectInvertedTrim(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	conn := database.Conn()
	conn.Exec(`INSERT INTO tracks (id, kind, name, position) VALUES ('t1', 'main', 'V1', 0)`)
	_, err = conn.Exec(`INSERT INTO placements (instance_id, track_id, source_clip_id, trim_in, trim_out, position)
		VALUES ('p1', 't1', 'c1', 5, 5, 0)`)
	if err == nil {
		t.Error("expected CHECK constraint to reject trim_in >= trim_out")
	}
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestScanRepo_RecordAndList(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := NewScanRepo(db)
	ctx := context.Background()

	tests := []Scan{
		{RootID: "t-p1", Mode: "plain", Paths: 10, Warnings: 1},
		{RootID: "t-p2", Mode: "produce", Paths: 3},
		{RootID: "t-p1", Mode: "compare", Paths: 10, Errors: 2},
	}
	for _, scan := range tests {
		got, err := repo.Record(ctx, scan)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if got.ID == 0 {
			t.Error("Record() did not assign an id")
		}
		if time.Since(got.CreatedAt) > time.Hour {
			t.Errorf("Record() CreatedAt = %v", got.CreatedAt)
		}
	}

	scans, err := repo.ListRecent(ctx, "t-p1", 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(scans) != 2 {
		t.Fatalf("ListRecent() returned %d scans, want 2", len(scans))
	}
	if scans[0].Mode != "compare" || scans[0].Errors != 2 {
		t.Errorf("ListRecent() newest = %+v", scans[0])
	}

	all, err := repo.ListRecent(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListRecent() limit ignored: %d scans", len(all))
	}
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ScanRepo stores summaries of finished scans and checks.
type ScanRepo struct {
	db *sql.DB
}

// NewScanRepo creates a new ScanRepo.
func NewScanRepo(db *sql.DB) *ScanRepo {
	return &ScanRepo{db: db}
}

// Record stores a scan summary and returns it with id and timestamp set.
func (r *ScanRepo) Record(ctx context.Context, scan Scan) (Scan, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO scans (root_id, mode, paths, errors, warnings) VALUES (?, ?, ?, ?, ?)",
		scan.RootID, scan.Mode, scan.Paths, scan.Errors, scan.Warnings,
	)
	if err != nil {
		return Scan{}, fmt.Errorf("failed to record scan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Scan{}, err
	}

	var createdAtStr string
	err = r.db.QueryRowContext(ctx, "SELECT created_at FROM scans WHERE id = ?", id).Scan(&createdAtStr)
	if err != nil {
		return Scan{}, err
	}
	scan.ID = int(id)
	scan.CreatedAt, err = parseTimestamp(createdAtStr)
	if err != nil {
		return Scan{}, err
	}
	return scan, nil
}

// ListRecent returns up to limit scans, newest first. An empty rootID lists all roots.
func (r *ScanRepo) ListRecent(ctx context.Context, rootID string, limit int) ([]Scan, error) {
	query := "SELECT id, root_id, mode, paths, errors, warnings, created_at FROM scans"
	var args []any
	if rootID != "" {
		query += " WHERE root_id = ?"
		args = append(args, rootID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var scan Scan
		var createdAtStr string
		if err := rows.Scan(&scan.ID, &scan.RootID, &scan.Mode, &scan.Paths, &scan.Errors, &scan.Warnings, &createdAtStr); err != nil {
			return nil, err
		}

		scan.CreatedAt, err = parseTimestamp(createdAtStr)
		if err != nil {
			return nil, err
		}

		scans = append(scans, scan)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return scans, nil
}

// parseTimestamp parses a SQLite DATETIME string.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		// Try alternative format (SQLite might use different format)
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp: %w", err)
		}
	}
	return t, nil
}

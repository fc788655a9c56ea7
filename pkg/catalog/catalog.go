// Package catalog records every persisted scan in a sqlite database so runs
// can be listed and replayed later.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ScanRecord describes one scan file.
type ScanRecord struct {
	Session    string    `json:"session"`
	Frame      int       `json:"frame"`
	Path       string    `json:"path"`
	Format     string    `json:"format"`
	Points     int       `json:"points"`
	CapturedAt time.Time `json:"captured_at"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	ImagePath  string    `json:"image_path,omitempty"`
}

// SessionSummary aggregates the scans of one capture session.
type SessionSummary struct {
	Session string    `json:"session"`
	Scans   int       `json:"scans"`
	Points  int       `json:"points"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
}

// Catalog is a sqlite-backed scan index.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog at path and applies the schema.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory '%s': %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog '%s': %w", path, err)
	}
	// sqlite allows one writer; pool workers share this handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Record inserts rec, replacing an earlier row for the same session and frame.
func (c *Catalog) Record(ctx context.Context, rec ScanRecord) error {
	query := `
		INSERT OR REPLACE INTO scans
			(session, frame, path, format, points, captured_at_ms, pos_x, pos_y, pos_z, image_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.db.ExecContext(ctx, query,
		rec.Session, rec.Frame, rec.Path, rec.Format, rec.Points,
		rec.CapturedAt.UnixMilli(), rec.X, rec.Y, rec.Z, rec.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to record scan %d of session %s: %w", rec.Frame, rec.Session, err)
	}
	return nil
}

// List returns the scans of session in frame order, or every scan when
// session is empty.
func (c *Catalog) List(ctx context.Context, session string) ([]ScanRecord, error) {
	query := `
		SELECT session, frame, path, format, points, captured_at_ms, pos_x, pos_y, pos_z, image_path
		FROM scans
		WHERE (? = '' OR session = ?)
		ORDER BY captured_at_ms, session, frame
	`
	rows, err := c.db.QueryContext(ctx, query, session, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var out []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var ms int64
		if err := rows.Scan(&rec.Session, &rec.Frame, &rec.Path, &rec.Format, &rec.Points,
			&ms, &rec.X, &rec.Y, &rec.Z, &rec.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.CapturedAt = time.UnixMilli(ms)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Sessions summarizes every session, oldest first.
func (c *Catalog) Sessions(ctx context.Context) ([]SessionSummary, error) {
	query := `
		SELECT session, COUNT(*), SUM(points), MIN(captured_at_ms), MAX(captured_at_ms)
		FROM scans
		GROUP BY session
		ORDER BY MIN(captured_at_ms)
	`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var first, last int64
		if err := rows.Scan(&s.Session, &s.Scans, &s.Points, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.First = time.UnixMilli(first)
		s.Last = time.UnixMilli(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

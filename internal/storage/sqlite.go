package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// SQLiteStorage keeps visits in a queryable SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// Stats summarizes the stored visits
type Stats struct {
	TotalVisits int
	DistinctURL int
	Successful  int
	Redirects   int
	Failed      int
	ByKind      map[types.Kind]int
}

// VisitFilter narrows QueryVisits; zero fields match everything
type VisitFilter struct {
	URL        string
	StatusCode int
	Kind       types.Kind
	Limit      int
}

// NewSQLiteStorage opens (or creates) the database at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		hop INTEGER NOT NULL,
		parent_url TEXT,
		status_code INTEGER,
		reason TEXT,
		kind TEXT NOT NULL,
		redirect TEXT,
		referenced TEXT,
		follow_note TEXT,
		error TEXT,
		elapsed_ms INTEGER,
		checked_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_visits_url ON visits(url);
	CREATE INDEX IF NOT EXISTS idx_visits_status_code ON visits(status_code);
	CREATE INDEX IF NOT EXISTS idx_visits_kind ON visits(kind);
	CREATE INDEX IF NOT EXISTS idx_visits_checked_at ON visits(checked_at);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveVisit inserts one visit row
func (s *SQLiteStorage) SaveVisit(visit types.Visit) error {
	query := `
		INSERT INTO visits
		(url, hop, parent_url, status_code, reason, kind, redirect, referenced, follow_note, error, elapsed_ms, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	referenced, err := json.Marshal(visit.Referenced)
	if err != nil {
		return fmt.Errorf("failed to marshal referenced urls: %w", err)
	}

	_, err = s.db.Exec(query,
		visit.URL,
		visit.Hop,
		visit.ParentURL,
		visit.StatusCode,
		visit.Reason,
		string(visit.Kind),
		visit.Redirect,
		string(referenced),
		visit.FollowNote,
		visit.Error,
		visit.ElapsedMS,
		visit.CheckedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}

	return nil
}

// QueryVisits returns visits matching filter, oldest first
func (s *SQLiteStorage) QueryVisits(filter VisitFilter) ([]types.Visit, error) {
	query := `SELECT url, hop, parent_url, status_code, reason, kind, redirect, referenced,
		follow_note, error, elapsed_ms, checked_at FROM visits WHERE 1=1`
	args := make([]any, 0)

	if filter.URL != "" {
		query += " AND url = ?"
		args = append(args, filter.URL)
	}

	if filter.StatusCode != 0 {
		query += " AND status_code = ?"
		args = append(args, filter.StatusCode)
	}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}

	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	visits := make([]types.Visit, 0)
	for rows.Next() {
		var visit types.Visit
		var kind, referenced, checkedAt string
		var parentURL, reason, redirect, followNote, errText sql.NullString
		err := rows.Scan(
			&visit.URL,
			&visit.Hop,
			&parentURL,
			&visit.StatusCode,
			&reason,
			&kind,
			&redirect,
			&referenced,
			&followNote,
			&errText,
			&visit.ElapsedMS,
			&checkedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}

		visit.ParentURL = parentURL.String
		visit.Reason = reason.String
		visit.Kind = types.Kind(kind)
		visit.Redirect = redirect.String
		visit.FollowNote = followNote.String
		visit.Error = errText.String
		if referenced != "" && referenced != "null" {
			_ = json.Unmarshal([]byte(referenced), &visit.Referenced)
		}
		visit.CheckedAt, _ = time.Parse(time.RFC3339Nano, checkedAt)

		visits = append(visits, visit)
	}

	return visits, rows.Err()
}

// GetStats returns totals over the stored visits
func (s *SQLiteStorage) GetStats() (Stats, error) {
	stats := Stats{ByKind: make(map[types.Kind]int)}

	counts := []struct {
		dst   *int
		query string
	}{
		{&stats.TotalVisits, "SELECT COUNT(*) FROM visits"},
		{&stats.DistinctURL, "SELECT COUNT(DISTINCT url) FROM visits"},
		{&stats.Successful, "SELECT COUNT(*) FROM visits WHERE kind = 'ok' AND status_code BETWEEN 200 AND 299"},
		{&stats.Redirects, "SELECT COUNT(*) FROM visits WHERE status_code IN (301, 302)"},
		{&stats.Failed, "SELECT COUNT(*) FROM visits WHERE kind != 'ok'"},
	}

	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return stats, fmt.Errorf("failed to compute stats: %w", err)
		}
	}

	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM visits GROUP BY kind")
	if err != nil {
		return stats, fmt.Errorf("failed to compute stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return stats, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.ByKind[types.Kind(kind)] = n
	}

	return stats, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

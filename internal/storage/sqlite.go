package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/IshaanNene/marketscrape/internal/types"
)

// SQLiteStorage appends listings to a local SQLite database so successive
// runs can be compared. Rows are keyed by run ID and position.
type SQLiteStorage struct {
	db     *sql.DB
	path   string
	runID  string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path, runID string, logger *slog.Logger) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &types.StorageError{Backend: "sqlite", Dest: path, Err: fmt.Errorf("create dir: %w", err)}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Dest: path, Err: fmt.Errorf("open: %w", err)}
	}

	s := &SQLiteStorage{
		db:     db,
		path:   path,
		runID:  runID,
		logger: logger.With("component", "sqlite_storage"),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Dest: path, Err: fmt.Errorf("init schema: %w", err)}
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		run_id TEXT NOT NULL,
		site TEXT NOT NULL,
		dest TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		url TEXT NOT NULL,
		scraped_at TEXT NOT NULL,
		PRIMARY KEY (run_id, site, position)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_site ON listings(site);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

func (s *SQLiteStorage) Store(site, dest string, listings []types.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: s.path, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO listings
		(run_id, site, dest, position, title, price, url, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: s.path, Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, l := range listings {
		if _, err := stmt.Exec(s.runID, site, dest, i, l.Title, l.Price, l.URL, now); err != nil {
			return &types.StorageError{Backend: s.Name(), Dest: s.path, Err: fmt.Errorf("insert: %w", err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: s.path, Err: err}
	}

	s.count += len(listings)
	s.logger.Debug("listings stored in sqlite", "site", site, "count", len(listings), "total", s.count)
	return nil
}

// Listings returns the rows recorded for site in runID, in position order.
func (s *SQLiteStorage) Listings(runID, site string) ([]types.Listing, error) {
	rows, err := s.db.Query(
		`SELECT title, price, url FROM listings WHERE run_id = ? AND site = ? ORDER BY position`,
		runID, site,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Listing
	for rows.Next() {
		var l types.Listing
		if err := rows.Scan(&l.Title, &l.Price, &l.URL); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	s.logger.Info("sqlite storage closing", "path", s.path, "total_listings", s.count)
	return s.db.Close()
}

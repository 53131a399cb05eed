package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists the listings one site produced. dest is the site's
	// configured output identifier; file backends resolve it under their
	// output directory, database backends record it alongside each row.
	Store(site, dest string, listings []types.Listing) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the backends cfg asks for. The file backend selected by
// Storage.Type is always present; MongoDB and SQLite are added when enabled,
// in which case the result fans out to all of them.
func New(cfg *config.Config, runID string, logger *slog.Logger) (Storage, error) {
	primary, err := NewFileStorage(cfg.Storage.Type, cfg.Storage.OutputDir, logger)
	if err != nil {
		return nil, err
	}
	backends := []Storage{primary}

	if cfg.Storage.SQLite.Enabled {
		s, err := NewSQLiteStorage(cfg.Storage.SQLite.Path, runID, logger)
		if err != nil {
			closeAll(backends)
			return nil, err
		}
		backends = append(backends, s)
	}

	if cfg.Storage.Mongo.Enabled {
		m := cfg.Storage.Mongo
		s, err := NewMongoStorage(m.URI, m.Database, m.Collection, runID, logger)
		if err != nil {
			closeAll(backends)
			return nil, err
		}
		backends = append(backends, s)
	}

	if len(backends) == 1 {
		return primary, nil
	}
	return NewMultiStorage(backends, logger), nil
}

func closeAll(backends []Storage) {
	for _, b := range backends {
		_ = b.Close()
	}
}

// resolve joins dest onto dir unless dest is already absolute.
func resolve(dir, dest string) string {
	if filepath.IsAbs(dest) || dir == "" {
		return dest
	}
	return filepath.Join(dir, dest)
}

// withExt swaps the extension of path for ext.
func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// createFile creates path and any missing parent directories.
var createFile = func(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// writeFile creates path, hands it to write and closes it. A failed close
// fails the write.
func writeFile(path string, write func(w io.Writer) error) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/IshaanNene/marketscrape/internal/types"
)

// --- JSON Storage ---

// JSONStorage writes each site's listings as a JSON array. The site's
// output identifier keeps its base name with the extension swapped to .json.
type JSONStorage struct {
	dir    string
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(dir string, logger *slog.Logger) *JSONStorage {
	return &JSONStorage{
		dir:    dir,
		logger: logger.With("component", "json_storage"),
	}
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(site, dest string, listings []types.Listing) error {
	path := withExt(resolve(s.dir, dest), ".json")

	if listings == nil {
		listings = []types.Listing{}
	}
	err := writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(listings); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	})
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: path, Err: err}
	}

	s.logger.Info("JSON written", "site", site, "path", path, "listings", len(listings))
	return nil
}

func (s *JSONStorage) Close() error { return nil }

// --- JSONL Storage ---

// JSONLStorage writes newline-delimited JSON, one listing per line.
type JSONLStorage struct {
	dir    string
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage.
func NewJSONLStorage(dir string, logger *slog.Logger) *JSONLStorage {
	return &JSONLStorage{
		dir:    dir,
		logger: logger.With("component", "jsonl_storage"),
	}
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(site, dest string, listings []types.Listing) error {
	path := withExt(resolve(s.dir, dest), ".jsonl")

	err := writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, l := range listings {
			if err := enc.Encode(l); err != nil {
				return fmt.Errorf("encode JSONL: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: path, Err: err}
	}

	s.logger.Info("JSONL written", "site", site, "path", path, "listings", len(listings))
	return nil
}

func (s *JSONLStorage) Close() error { return nil }

// --- CSV Storage ---

var csvHeaders = []string{"title", "price", "url"}

// CSVStorage writes a header row followed by one row per listing.
type CSVStorage struct {
	dir    string
	logger *slog.Logger
}

// NewCSVStorage creates a new CSV file storage.
func NewCSVStorage(dir string, logger *slog.Logger) *CSVStorage {
	return &CSVStorage{
		dir:    dir,
		logger: logger.With("component", "csv_storage"),
	}
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(site, dest string, listings []types.Listing) error {
	path := withExt(resolve(s.dir, dest), ".csv")

	err := writeFile(path, func(out io.Writer) error {
		w := csv.NewWriter(out)
		if err := w.Write(csvHeaders); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		for _, l := range listings {
			flat := l.ToFlatMap()
			row := make([]string, len(csvHeaders))
			for i, h := range csvHeaders {
				row[i] = flat[h]
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("write CSV row: %w", err)
			}
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: path, Err: err}
	}

	s.logger.Info("CSV written", "site", site, "path", path, "listings", len(listings))
	return nil
}

func (s *CSVStorage) Close() error { return nil }

// NewFileStorage creates the appropriate file-based storage by type.
func NewFileStorage(storageType, outputDir string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "", "text":
		return NewTextStorage(outputDir, logger), nil
	case "json":
		return NewJSONStorage(outputDir, logger), nil
	case "jsonl":
		return NewJSONLStorage(outputDir, logger), nil
	case "csv":
		return NewCSVStorage(outputDir, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

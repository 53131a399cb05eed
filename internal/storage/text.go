package storage

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/IshaanNene/marketscrape/internal/types"
)

// Text artifact layout.
const (
	titlePrefix = "Título: "
	pricePrefix = "Preço: "
	urlPrefix   = "URL: "
	EmptyMarker = "Nenhum item encontrado durante o scraping."
)

var separator = strings.Repeat("-", 40)

// TextStorage writes one plain-text artifact per site: a block of
// title, price and URL lines per listing followed by a dashed separator.
// A site with no listings gets a file holding only EmptyMarker.
type TextStorage struct {
	dir    string
	logger *slog.Logger
}

// NewTextStorage creates a text storage rooted at dir.
func NewTextStorage(dir string, logger *slog.Logger) *TextStorage {
	return &TextStorage{
		dir:    dir,
		logger: logger.With("component", "text_storage"),
	}
}

func (s *TextStorage) Name() string { return "text" }

func (s *TextStorage) Store(site, dest string, listings []types.Listing) error {
	path := resolve(s.dir, dest)

	err := writeFile(path, func(out io.Writer) error {
		w := bufio.NewWriter(out)
		if err := WriteText(w, listings); err != nil {
			return err
		}
		return w.Flush()
	})
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Dest: path, Err: err}
	}

	s.logger.Info("artifact written", "site", site, "path", path, "listings", len(listings))
	return nil
}

func (s *TextStorage) Close() error { return nil }

// WriteText renders listings in the text artifact format.
func WriteText(w io.Writer, listings []types.Listing) error {
	if len(listings) == 0 {
		_, err := io.WriteString(w, EmptyMarker+"\n")
		return err
	}
	for _, l := range listings {
		if _, err := fmt.Fprintf(w, "%s%s\n%s%s\n%s%s\n%s\n",
			titlePrefix, l.Title,
			pricePrefix, l.Price,
			urlPrefix, l.URL,
			separator,
		); err != nil {
			return err
		}
	}
	return nil
}

// ReadText parses a text artifact back into listings. The empty marker
// yields an empty, non-nil slice. Lines that carry none of the field
// prefixes continue the previous field.
func ReadText(path string) ([]types.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	listings := make([]types.Listing, 0)
	var (
		cur   types.Listing
		open  bool
		field *string
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == EmptyMarker && !open:
			continue
		case line == separator:
			listings = append(listings, cur)
			cur, open, field = types.Listing{}, false, nil
		case strings.HasPrefix(line, titlePrefix):
			cur.Title, open = strings.TrimPrefix(line, titlePrefix), true
			field = &cur.Title
		case strings.HasPrefix(line, pricePrefix):
			cur.Price, open = strings.TrimPrefix(line, pricePrefix), true
			field = &cur.Price
		case strings.HasPrefix(line, urlPrefix):
			cur.URL, open = strings.TrimPrefix(line, urlPrefix), true
			field = &cur.URL
		case field != nil:
			*field += "\n" + line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if open {
		return nil, fmt.Errorf("read %s: truncated block after %d listings", path, len(listings))
	}
	return listings, nil
}

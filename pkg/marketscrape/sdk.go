// Package marketscrape provides a public SDK for running a marketplace
// search from Go code instead of the CLI.
//
// Example usage:
//
//	s := marketscrape.New(
//	    marketscrape.WithRetries(2),
//	    marketscrape.WithTimeout(20*time.Second),
//	)
//
//	listings, err := s.Search(ctx, marketscrape.OLX, "bicicleta aro 29")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, l := range listings {
//	    fmt.Println(l.Title, l.Price, l.URL)
//	}
package marketscrape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/engine"
	"github.com/IshaanNene/marketscrape/internal/fetcher"
	"github.com/IshaanNene/marketscrape/internal/sites"
	"github.com/IshaanNene/marketscrape/internal/types"
)

// Listing is one extracted search result.
type Listing = types.Listing

// Supported marketplaces.
const (
	MercadoLivre = sites.MercadoLivre
	Amazon       = sites.Amazon
	OLX          = sites.OLX
)

// Scraper is the high-level API for using marketscrape as a library.
// Every Search is its own run with a fresh cookie session.
type Scraper struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithLogger routes the scraper's logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) { s.logger = logger }
}

// WithRetries sets how many times a failed fetch is retried.
func WithRetries(n int) Option {
	return func(s *Scraper) { s.cfg.Engine.MaxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scraper) { s.cfg.Engine.RetryDelay = d }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) { s.cfg.Engine.RequestTimeout = d }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) { s.cfg.Fetcher.UserAgent = ua }
}

// WithProxy sends requests through the given proxies in turn.
func WithProxy(urls ...string) Option {
	return func(s *Scraper) { s.cfg.Fetcher.Proxies = urls }
}

// WithBaseURL points a marketplace at another base URL, e.g. a mirror.
func WithBaseURL(site, baseURL string) Option {
	return func(s *Scraper) {
		for i := range s.cfg.Sites {
			if s.cfg.Sites[i].Name == site {
				s.cfg.Sites[i].BaseURL = baseURL
			}
		}
	}
}

// New creates a Scraper with the given options.
func New(opts ...Option) *Scraper {
	s := &Scraper{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return s
}

// Sites returns the marketplaces Search accepts.
func (s *Scraper) Sites() []string {
	return sites.Names()
}

// Search fetches the results page of site for term and returns its listings.
// An empty, non-nil slice means the page held no listings.
func (s *Scraper) Search(ctx context.Context, site, term string) ([]Listing, error) {
	sc, ok := s.siteConfig(site)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSite, site)
	}

	cfg := *s.cfg
	cfg.Sites = []config.SiteConfig{sc}
	cfg.Engine.SearchTerm = term
	cfg.Storage.DebugHTML = false
	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f, err := fetcher.NewHTTPFetcher(&cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	sink := &collector{}
	r, err := engine.New(&cfg, f, sink, s.logger)
	if err != nil {
		return nil, err
	}
	if err := r.RunSite(ctx, sc); err != nil {
		return nil, err
	}
	return sink.listings, nil
}

func (s *Scraper) siteConfig(name string) (config.SiteConfig, bool) {
	for _, sc := range s.cfg.Sites {
		if sc.Name == name {
			return sc, true
		}
	}
	return config.SiteConfig{}, false
}

// collector is an in-memory sink for a single site.
type collector struct {
	listings []Listing
}

func (c *collector) Store(_, _ string, listings []types.Listing) error {
	c.listings = append([]Listing{}, listings...)
	return nil
}

func (c *collector) Close() error { return nil }

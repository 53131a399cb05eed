package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/fetcher"
	"github.com/IshaanNene/marketscrape/internal/observability"
	"github.com/IshaanNene/marketscrape/internal/parser"
	"github.com/IshaanNene/marketscrape/internal/sites"
	"github.com/IshaanNene/marketscrape/internal/types"
)

// maxBackoffShift caps the exponential growth of the retry delay.
const maxBackoffShift = 6

// Fetcher is the page retrieval the runner depends on.
type Fetcher interface {
	Fetch(ctx context.Context, sess *fetcher.Session, url string, retriesRemaining int) (string, error)
	Close() error
}

// Storage is the sink listings are written to.
type Storage interface {
	Store(site, dest string, listings []types.Listing) error
	Close() error
}

// LookupFunc resolves a configured site name to its extraction strategy.
type LookupFunc func(name string) (sites.Site, bool)

// Runner scrapes the configured sites one after another. A Runner is one
// run: it owns the cookie session every fetch of the run shares.
type Runner struct {
	cfg     *config.Config
	fetcher Fetcher
	storage Storage
	session *fetcher.Session
	lookup  LookupFunc
	metrics *observability.Metrics
	logger  *slog.Logger
	runID   string
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics sets the counters the runner reports to.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRunID tags the run's log lines.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithLookup replaces the site registry.
func WithLookup(fn LookupFunc) Option {
	return func(r *Runner) { r.lookup = fn }
}

// WithSession makes the run reuse an existing cookie session.
func WithSession(s *fetcher.Session) Option {
	return func(r *Runner) { r.session = s }
}

// New creates a Runner. It fails only when the run cannot fetch at all.
func New(cfg *config.Config, f Fetcher, store Storage, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if f == nil {
		return nil, errors.New("fetch client is not available")
	}
	if store == nil {
		return nil, errors.New("storage is not configured")
	}

	r := &Runner{
		cfg:     cfg,
		fetcher: f,
		storage: store,
		lookup:  sites.Lookup,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.session == nil {
		sess, err := fetcher.NewSession()
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		r.session = sess
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetrics(logger)
	}
	r.logger = logger.With("component", "runner")
	if r.runID != "" {
		r.logger = r.logger.With("run_id", r.runID)
	}
	return r, nil
}

// Run scrapes every configured site in order. A site that fails is logged
// and skipped; Run reports false only when ctx ends the run early.
func (r *Runner) Run(ctx context.Context) bool {
	start := time.Now()
	r.logger.Info("run starting",
		"sites", len(r.cfg.Sites),
		"search_term", r.cfg.Engine.SearchTerm,
		"max_retries", r.cfg.Engine.MaxRetries,
	)

	for _, site := range r.cfg.Sites {
		if ctx.Err() != nil {
			break
		}
		_ = r.RunSite(ctx, site)
	}

	if err := ctx.Err(); err != nil {
		r.logger.Error("run interrupted", "error", err, "duration", time.Since(start))
		return false
	}

	r.logger.Info("run finished",
		"duration", time.Since(start),
		"stats", r.metrics.Snapshot(),
	)
	return true
}

// RunSite fetches, extracts and stores a single site. Every failure is
// logged here at the level it deserves; the returned error is for callers
// that want to act on it.
func (r *Runner) RunSite(ctx context.Context, sc config.SiteConfig) error {
	log := r.logger.With("site", sc.Name)

	site, ok := r.lookup(sc.Name)
	if !ok {
		r.metrics.SitesSkipped.Add(1)
		log.Warn("no extractor registered for site, skipping")
		return fmt.Errorf("%w: %q", types.ErrUnknownSite, sc.Name)
	}

	url := site.BuildURL(sc.BaseURL, r.cfg.Engine.SearchTerm)
	log.Info("scraping site", "url", url)

	body, err := r.fetchWithRetry(ctx, url)
	if err != nil {
		r.metrics.SitesFailed.Add(1)
		switch {
		case ctx.Err() != nil:
			log.Warn("site abandoned", "error", err)
		case types.IsTransport(err):
			log.Error("fetch failed, skipping site", "url", url, "error", err)
		default:
			log.Warn("no content, skipping site", "url", url, "error", err)
		}
		return err
	}

	if r.cfg.Storage.DebugHTML {
		if path, err := r.writeDebugPage(sc.Name, body); err != nil {
			log.Error("debug page not written", "error", err)
		} else {
			log.Debug("debug page written", "path", path)
		}
	}

	root, err := parser.ParseString(body)
	if err != nil {
		r.metrics.SitesFailed.Add(1)
		perr := &types.ParseError{URL: url, Site: sc.Name, Err: err}
		log.Error("parse failed, skipping site", "error", perr)
		return perr
	}

	listings := site.Extract(root, sites.Origin(sc.BaseURL))
	r.metrics.ListingsExtracted.Add(int64(len(listings)))
	log.Info("listings extracted", "count", len(listings))

	if err := r.storage.Store(sc.Name, sc.OutputFile, listings); err != nil {
		r.metrics.StorageErrors.Add(1)
		log.Error("storing listings failed", "dest", sc.OutputFile, "error", err)
		return err
	}
	r.metrics.ListingsStored.Add(int64(len(listings)))
	r.metrics.SitesScraped.Add(1)
	return nil
}

// fetchWithRetry makes up to 1+MaxRetries attempts, backing off between
// retryable failures.
func (r *Runner) fetchWithRetry(ctx context.Context, url string) (string, error) {
	attempts := 1 + max(r.cfg.Engine.MaxRetries, 0)

	for attempt := 1; ; attempt++ {
		body, err := r.fetcher.Fetch(ctx, r.session, url, attempts-attempt)
		if err == nil && strings.TrimSpace(body) == "" {
			err = &types.FetchError{Kind: types.KindNoContent, URL: url, Err: types.ErrEmptyResponse, Retryable: true}
		}
		if err == nil {
			return body, nil
		}

		var fe *types.FetchError
		retryable := errors.As(err, &fe) && fe.Retryable
		if !retryable || ctx.Err() != nil {
			return "", err
		}
		if attempt >= attempts {
			return "", fmt.Errorf("%w after %d attempts: %w", types.ErrMaxRetries, attempts, err)
		}

		delay := r.backoff(attempt, fe.RetryAfter)
		r.metrics.RequestsRetried.Add(1)
		r.logger.Warn("fetch attempt failed, retrying",
			"url", url,
			"attempt", attempt,
			"of", attempts,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns RetryDelay*2^(attempt-1) with jitter, or the server's
// Retry-After when that is longer.
func (r *Runner) backoff(attempt int, retryAfter time.Duration) time.Duration {
	shift := min(attempt-1, maxBackoffShift)
	delay := fetcher.RandomDelay(r.cfg.Engine.RetryDelay << shift)
	if retryAfter > delay {
		return retryAfter
	}
	return delay
}

// writeDebugPage saves the raw page as <output_dir>/<slug>_debug_page.html.
func (r *Runner) writeDebugPage(name, body string) (string, error) {
	dir := r.cfg.Storage.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, DebugPageName(name))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// DebugPageName returns the file name the raw page of site is saved under.
func DebugPageName(site string) string {
	return slug(site) + "_debug_page.html"
}

// slug lower-cases name and collapses every run of other characters to '_'.
func slug(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/fetcher"
	"github.com/IshaanNene/marketscrape/internal/observability"
	"github.com/IshaanNene/marketscrape/internal/sites"
	"github.com/IshaanNene/marketscrape/internal/storage"
	"github.com/IshaanNene/marketscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	mlPage = `<html><body>
<div class="poly-card"><h3 class="poly-component__title-wrapper"><a class="poly-component__title" href="https://produto.mercadolivre.com.br/MLB-1">Cadeira Gamer</a></h3>
<span class="andes-money-amount__fraction">899</span></div>
</body></html>`

	olxPage = `<html><body><ul>
<li data-testid="ad-list-item"><a href="https://sp.olx.com.br/1"></a>
<h2 class="olx-ad-card__title">Bicicleta aro 29</h2><h3 class="olx-ad-card__price">R$ 850</h3></li>
</ul></body></html>`

	amazonPage = `<html><body>
<div data-component-type="s-search-result"><h2 class="a-size-base-plus"><span>Fone JBL</span></h2>
<a class="a-link-normal" href="/dp/B01">x</a><span class="a-offscreen">R$ 199,90</span></div>
</body></html>`
)

// --- test doubles ---

type fetchCall struct {
	url              string
	retriesRemaining int
}

// fakeFetcher replays scripted results per URL; the last result repeats.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]fakeResult
	calls   []fetchCall
}

type fakeResult struct {
	body string
	err  error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: make(map[string][]fakeResult)}
}

func (f *fakeFetcher) on(url string, results ...fakeResult) *fakeFetcher {
	f.results[url] = results
	return f
}

func (f *fakeFetcher) Fetch(_ context.Context, sess *fetcher.Session, url string, retriesRemaining int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{url, retriesRemaining})

	rs, ok := f.results[url]
	if !ok || len(rs) == 0 {
		return "", &types.FetchError{Kind: types.KindNoContent, URL: url, StatusCode: 404, Err: errors.New("not found")}
	}
	r := rs[0]
	if len(rs) > 1 {
		f.results[url] = rs[1:]
	}
	return r.body, r.err
}

func (f *fakeFetcher) Close() error { return nil }

func (f *fakeFetcher) callCount(url string) int {
	n := 0
	for _, c := range f.calls {
		if c.url == url {
			n++
		}
	}
	return n
}

// captureHandler records every log record regardless of level.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newCaptureLogger() (*slog.Logger, *captureHandler) {
	h := &captureHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(h), h
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range *h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

type failingStorage struct{ failFor string }

func (s *failingStorage) Store(site, dest string, listings []types.Listing) error {
	if site == s.failFor {
		return &types.StorageError{Backend: "test", Dest: dest, Err: errors.New("permission denied")}
	}
	return nil
}

func (s *failingStorage) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.OutputDir = t.TempDir()
	cfg.Engine.MaxRetries = 2
	cfg.Engine.RetryDelay = time.Millisecond
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, f Fetcher, logger *slog.Logger, opts ...Option) *Runner {
	t.Helper()
	r, err := New(cfg, f, storage.NewTextStorage(cfg.Storage.OutputDir, testLogger), logger, opts...)
	require.NoError(t, err)
	return r
}

func defaultPages() *fakeFetcher {
	return newFakeFetcher().
		on("https://lista.mercadolivre.com.br/", fakeResult{body: mlPage}).
		on("https://www.olx.com.br/brasil", fakeResult{body: olxPage}).
		on("https://www.amazon.com.br/s", fakeResult{body: amazonPage})
}

// --- tests ---

func TestNewRequiresFetcher(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil, storage.NewTextStorage(cfg.Storage.OutputDir, testLogger), testLogger)
	assert.Error(t, err)
}

func TestRunWritesOneArtifactPerSite(t *testing.T) {
	cfg := testConfig(t)
	f := defaultPages()

	assert.True(t, newRunner(t, cfg, f, testLogger).Run(context.Background()))

	ml, err := storage.ReadText(filepath.Join(cfg.Storage.OutputDir, "mercado_livre_data.txt"))
	require.NoError(t, err)
	assert.Equal(t, []types.Listing{{Title: "Cadeira Gamer", Price: "899", URL: "https://produto.mercadolivre.com.br/MLB-1"}}, ml)

	amz, err := storage.ReadText(filepath.Join(cfg.Storage.OutputDir, "amazon_data.txt"))
	require.NoError(t, err)
	require.Len(t, amz, 1)
	assert.Equal(t, "https://www.amazon.com.br/dp/B01", amz[0].URL)

	olx, err := storage.ReadText(filepath.Join(cfg.Storage.OutputDir, "olx_data.txt"))
	require.NoError(t, err)
	assert.Len(t, olx, 1)

	// sites run in configuration order
	require.Len(t, f.calls, 3)
	assert.Equal(t, "https://lista.mercadolivre.com.br/", f.calls[0].url)
	assert.Equal(t, "https://www.olx.com.br/brasil", f.calls[1].url)
	assert.Equal(t, "https://www.amazon.com.br/s", f.calls[2].url)
}

func TestRunUnknownSiteIsSkippedWithOneWarning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sites = []config.SiteConfig{{Name: "Foo", BaseURL: "https://foo.example/", OutputFile: "foo.txt"}}

	f := newFakeFetcher()
	logger, logs := newCaptureLogger()

	extractCalls := 0
	lookup := func(name string) (sites.Site, bool) {
		s, ok := sites.Lookup(name)
		if !ok {
			return s, false
		}
		inner := s.Extract
		s.Extract = func(root *html.Node, origin string) []types.Listing {
			extractCalls++
			return inner(root, origin)
		}
		return s, true
	}

	ok := newRunner(t, cfg, f, logger, WithLookup(lookup)).Run(context.Background())

	assert.True(t, ok)
	assert.Empty(t, f.calls)
	assert.Zero(t, extractCalls)
	assert.Equal(t, 1, logs.count(slog.LevelWarn))
	assert.Zero(t, logs.count(slog.LevelError))
	assert.NoFileExists(t, filepath.Join(cfg.Storage.OutputDir, "foo.txt"))
}

func TestRunTransportTimeoutOnOneSite(t *testing.T) {
	cfg := testConfig(t)
	timeout := &types.FetchError{
		Kind:      types.KindTransport,
		URL:       "https://www.olx.com.br/brasil",
		Err:       context.DeadlineExceeded,
		Retryable: true,
	}
	f := defaultPages().on("https://www.olx.com.br/brasil", fakeResult{err: timeout})
	logger, logs := newCaptureLogger()
	m := observability.NewMetrics(testLogger)

	ok := newRunner(t, cfg, f, logger, WithMetrics(m)).Run(context.Background())

	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(cfg.Storage.OutputDir, "mercado_livre_data.txt"))
	assert.FileExists(t, filepath.Join(cfg.Storage.OutputDir, "amazon_data.txt"))
	assert.NoFileExists(t, filepath.Join(cfg.Storage.OutputDir, "olx_data.txt"))

	assert.Equal(t, 3, f.callCount("https://www.olx.com.br/brasil"), "1 attempt + 2 retries")
	assert.Equal(t, 1, logs.count(slog.LevelError))
	assert.Equal(t, int64(1), m.SitesFailed.Load())
	assert.Equal(t, int64(2), m.SitesScraped.Load())
	assert.Equal(t, int64(2), m.RequestsRetried.Load())
}

func TestRunSiteRetrySucceedsOnSecondAttempt(t *testing.T) {
	cfg := testConfig(t)
	url := "https://www.amazon.com.br/s"
	f := newFakeFetcher().on(url,
		fakeResult{err: &types.FetchError{Kind: types.KindNoContent, URL: url, StatusCode: 503, Err: errors.New("unavailable"), Retryable: true}},
		fakeResult{body: amazonPage},
	)

	r := newRunner(t, cfg, f, testLogger)
	require.NoError(t, r.RunSite(context.Background(), cfg.Sites[2]))

	require.Len(t, f.calls, 2)
	assert.Equal(t, 2, f.calls[0].retriesRemaining)
	assert.Equal(t, 1, f.calls[1].retriesRemaining)
	assert.FileExists(t, filepath.Join(cfg.Storage.OutputDir, "amazon_data.txt"))
}

func TestRunSiteDoesNotRetryPermanentFailures(t *testing.T) {
	cfg := testConfig(t)
	f := newFakeFetcher() // every URL is a 404

	err := newRunner(t, cfg, f, testLogger).RunSite(context.Background(), cfg.Sites[0])
	require.Error(t, err)
	assert.Len(t, f.calls, 1)
	assert.False(t, types.IsTransport(err))
	assert.NoFileExists(t, filepath.Join(cfg.Storage.OutputDir, "mercado_livre_data.txt"))
}

func TestRunSiteExhaustsRetryBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.MaxRetries = 0
	url := "https://lista.mercadolivre.com.br/"
	f := newFakeFetcher().on(url, fakeResult{body: "   "})

	err := newRunner(t, cfg, f, testLogger).RunSite(context.Background(), cfg.Sites[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMaxRetries)
	assert.ErrorIs(t, err, types.ErrEmptyResponse)
	assert.Len(t, f.calls, 1)
}

func TestRunSiteEmptyResultWritesMarker(t *testing.T) {
	cfg := testConfig(t)
	f := newFakeFetcher().on("https://www.olx.com.br/brasil", fakeResult{body: "<html><body><p>Nenhum anúncio</p></body></html>"})

	require.NoError(t, newRunner(t, cfg, f, testLogger).RunSite(context.Background(), cfg.Sites[1]))

	data, err := os.ReadFile(filepath.Join(cfg.Storage.OutputDir, "olx_data.txt"))
	require.NoError(t, err)
	assert.Equal(t, storage.EmptyMarker+"\n", string(data))
}

func TestRunContinuesAfterStorageFailure(t *testing.T) {
	cfg := testConfig(t)
	f := defaultPages()
	logger, logs := newCaptureLogger()

	r, err := New(cfg, f, &failingStorage{failFor: sites.MercadoLivre}, logger)
	require.NoError(t, err)

	assert.True(t, r.Run(context.Background()))
	assert.Len(t, f.calls, 3, "later sites still run")
	assert.Equal(t, 1, logs.count(slog.LevelError))
}

func TestRunSearchTermComposesURLs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.SearchTerm = "bicicleta aro"
	f := newFakeFetcher()

	newRunner(t, cfg, f, testLogger).Run(context.Background())

	require.Len(t, f.calls, 3)
	assert.Equal(t, "https://lista.mercadolivre.com.br/bicicleta-aro", f.calls[0].url)
	assert.Equal(t, "https://www.olx.com.br/brasil?q=bicicleta+aro", f.calls[1].url)
	assert.Equal(t, "https://www.amazon.com.br/s?k=bicicleta+aro", f.calls[2].url)
}

func TestRunWritesDebugPage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DebugHTML = true

	require.True(t, newRunner(t, cfg, defaultPages(), testLogger).Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(cfg.Storage.OutputDir, "mercado_livre_debug_page.html"))
	require.NoError(t, err)
	assert.Equal(t, mlPage, string(data))
	assert.FileExists(t, filepath.Join(cfg.Storage.OutputDir, "olx_debug_page.html"))
}

func TestRunCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := defaultPages()
	assert.False(t, newRunner(t, cfg, f, testLogger).Run(ctx))
	assert.Empty(t, f.calls)
}

func TestBackoff(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.RetryDelay = 100 * time.Millisecond
	r := newRunner(t, cfg, newFakeFetcher(), testLogger)

	d := r.backoff(3, 0)
	assert.GreaterOrEqual(t, d, 300*time.Millisecond)
	assert.LessOrEqual(t, d, 500*time.Millisecond)

	assert.Equal(t, 10*time.Second, r.backoff(1, 10*time.Second), "Retry-After wins when longer")
}

func TestDebugPageName(t *testing.T) {
	tests := []struct {
		site string
		want string
	}{
		{"Mercado Livre", "mercado_livre_debug_page.html"},
		{"OLX", "olx_debug_page.html"},
		{"  A / B  ", "a_b_debug_page.html"},
	}

	for _, tt := range tests {
		t.Run(tt.site, func(t *testing.T) {
			assert.Equal(t, tt.want, DebugPageName(tt.site))
		})
	}
}

func TestRunEndToEndOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ml/", func(w http.ResponseWriter, r *http.Request) {
		// results are gated behind a cookie handshake
		if _, err := r.Cookie("_d2id"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "_d2id", Value: "1", Path: "/"})
			http.Redirect(w, r, r.URL.String(), http.StatusFound)
			return
		}
		w.Write([]byte(mlPage))
	})
	mux.HandleFunc("/olx", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/s", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(amazonPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Sites = []config.SiteConfig{
		{Name: sites.MercadoLivre, BaseURL: srv.URL + "/ml/", OutputFile: "ml.txt"},
		{Name: sites.OLX, BaseURL: srv.URL + "/olx", OutputFile: "olx.txt"},
		{Name: sites.Amazon, BaseURL: srv.URL + "/s", OutputFile: "amazon.txt"},
	}

	hf, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)
	defer hf.Close()

	r, err := New(cfg, hf, storage.NewTextStorage(cfg.Storage.OutputDir, testLogger), testLogger)
	require.NoError(t, err)
	require.True(t, r.Run(context.Background()))

	ml, err := storage.ReadText(filepath.Join(cfg.Storage.OutputDir, "ml.txt"))
	require.NoError(t, err)
	require.Len(t, ml, 1)
	assert.Equal(t, "Cadeira Gamer", ml[0].Title)

	amz, err := storage.ReadText(filepath.Join(cfg.Storage.OutputDir, "amazon.txt"))
	require.NoError(t, err)
	require.Len(t, amz, 1)
	assert.Equal(t, srv.URL+"/dp/B01", amz[0].URL)

	assert.NoFileExists(t, filepath.Join(cfg.Storage.OutputDir, "olx.txt"))
}

func TestRunSiteRetriesCompressedEmptyBody(t *testing.T) {
	var empty bytes.Buffer
	zw := gzip.NewWriter(&empty)
	require.NoError(t, zw.Close())

	tests := []struct {
		name       string
		emptyFirst int32
		wantErr    bool
	}{
		{"recovers on third attempt", 2, false},
		{"budget exhausted", 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) <= tt.emptyFirst {
					w.Header().Set("Content-Encoding", "gzip")
					w.Write(empty.Bytes())
					return
				}
				w.Write([]byte(olxPage))
			}))
			defer srv.Close()

			cfg := testConfig(t)
			sc := config.SiteConfig{Name: sites.OLX, BaseURL: srv.URL + "/olx", OutputFile: "olx.txt"}
			cfg.Sites = []config.SiteConfig{sc}

			logger, logs := newCaptureLogger()
			hf, err := fetcher.NewHTTPFetcher(cfg, logger)
			require.NoError(t, err)
			defer hf.Close()

			err = newRunner(t, cfg, hf, logger).RunSite(context.Background(), sc)

			assert.Equal(t, int32(3), hits.Load(), "1 attempt plus 2 retries")
			assert.Zero(t, logs.count(slog.LevelError), "an empty page is not a transport failure")
			assert.GreaterOrEqual(t, logs.count(slog.LevelWarn), 2)

			if !tt.wantErr {
				require.NoError(t, err)
				got, err := storage.ReadText(filepath.Join(cfg.Storage.OutputDir, "olx.txt"))
				require.NoError(t, err)
				assert.Len(t, got, 1)
				return
			}
			assert.ErrorIs(t, err, types.ErrMaxRetries)
			assert.ErrorIs(t, err, types.ErrEmptyResponse)
			assert.False(t, types.IsTransport(err))
			assert.NoFileExists(t, filepath.Join(cfg.Storage.OutputDir, "olx.txt"))
		})
	}
}

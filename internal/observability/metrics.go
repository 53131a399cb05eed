package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for a scrape run.
type Metrics struct {
	// Request metrics
	RequestsTotal     atomic.Int64
	RequestsRetried   atomic.Int64
	TransportFailures atomic.Int64

	// Response metrics
	Responses2xx     atomic.Int64
	Responses3xx     atomic.Int64
	Responses4xx     atomic.Int64
	Responses5xx     atomic.Int64
	EmptyResponses   atomic.Int64
	BytesDownloaded  atomic.Int64

	// Site metrics
	SitesScraped atomic.Int64
	SitesFailed  atomic.Int64
	SitesSkipped atomic.Int64

	// Listing metrics
	ListingsExtracted atomic.Int64
	ListingsStored    atomic.Int64
	StorageErrors     atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ObserveStatus counts a response by status class.
func (m *Metrics) ObserveStatus(code int) {
	switch {
	case code >= 500:
		m.Responses5xx.Add(1)
	case code >= 400:
		m.Responses4xx.Add(1)
	case code >= 300:
		m.Responses3xx.Add(1)
	case code >= 200:
		m.Responses2xx.Add(1)
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"marketscrape_requests_total", "Total fetch attempts", m.RequestsTotal.Load()},
		{"marketscrape_requests_retried_total", "Total retried fetch attempts", m.RequestsRetried.Load()},
		{"marketscrape_transport_failures_total", "Total transport-level fetch failures", m.TransportFailures.Load()},
		{"marketscrape_responses_2xx_total", "Total 2xx responses", m.Responses2xx.Load()},
		{"marketscrape_responses_3xx_total", "Total 3xx responses", m.Responses3xx.Load()},
		{"marketscrape_responses_4xx_total", "Total 4xx responses", m.Responses4xx.Load()},
		{"marketscrape_responses_5xx_total", "Total 5xx responses", m.Responses5xx.Load()},
		{"marketscrape_empty_responses_total", "Total responses with an empty body", m.EmptyResponses.Load()},
		{"marketscrape_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"marketscrape_sites_scraped_total", "Total sites scraped", m.SitesScraped.Load()},
		{"marketscrape_sites_failed_total", "Total sites whose page could not be fetched", m.SitesFailed.Load()},
		{"marketscrape_sites_skipped_total", "Total sites skipped for lack of an extractor", m.SitesSkipped.Load()},
		{"marketscrape_listings_extracted_total", "Total listings extracted", m.ListingsExtracted.Load()},
		{"marketscrape_listings_stored_total", "Total listings stored", m.ListingsStored.Load()},
		{"marketscrape_storage_errors_total", "Total storage failures", m.StorageErrors.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests_total":     m.RequestsTotal.Load(),
		"requests_retried":   m.RequestsRetried.Load(),
		"transport_failures": m.TransportFailures.Load(),
		"responses_2xx":      m.Responses2xx.Load(),
		"responses_4xx":      m.Responses4xx.Load(),
		"responses_5xx":      m.Responses5xx.Load(),
		"empty_responses":    m.EmptyResponses.Load(),
		"bytes_downloaded":   m.BytesDownloaded.Load(),
		"sites_scraped":      m.SitesScraped.Load(),
		"sites_failed":       m.SitesFailed.Load(),
		"sites_skipped":      m.SitesSkipped.Load(),
		"listings_extracted": m.ListingsExtracted.Load(),
		"listings_stored":    m.ListingsStored.Load(),
		"storage_errors":     m.StorageErrors.Load(),
	}
}

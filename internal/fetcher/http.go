package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/IshaanNene/marketscrape/internal/config"
	"github.com/IshaanNene/marketscrape/internal/observability"
	"github.com/IshaanNene/marketscrape/internal/types"
)

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client  *http.Client
	cfg     *config.FetcherConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithMetrics makes the fetcher count requests, statuses and bytes.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *HTTPFetcher) { f.metrics = m }
}

// NewHTTPFetcher creates a new HTTP fetcher. The client carries no cookie
// jar of its own; cookies come from the Session handed to each Fetch.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger, opts ...Option) (*HTTPFetcher, error) {
	if cfg.Engine.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", cfg.Engine.RequestTimeout)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Engine.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Fetcher.TLSInsecure,
		},
		DisableCompression: true, // decompression (including brotli) is done here
	}

	if len(cfg.Fetcher.Proxies) > 0 {
		if pm := NewProxyManager(&cfg.Fetcher, logger); pm.Count() > 0 {
			transport.Proxy = pm.ProxyFunc()
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Fetcher.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.Fetcher.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.Fetcher.MaxRedirects)
		}
		return nil
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			Timeout:       cfg.Engine.RequestTimeout,
			CheckRedirect: redirectPolicy,
		},
		cfg:    &cfg.Fetcher,
		logger: logger.With("component", "http_fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch performs a single GET and returns the body as UTF-8 text.
func (f *HTTPFetcher) Fetch(ctx context.Context, sess *Session, url string, retriesRemaining int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &types.FetchError{
			Kind: types.KindTransport,
			URL:  url,
			Err:  fmt.Errorf("%w: %v", types.ErrInvalidURL, err),
		}
	}
	f.setHeaders(req)

	client := f.client
	if sess != nil {
		c := *f.client
		c.Jar = sess.Jar()
		client = &c
	}

	if f.metrics != nil {
		f.metrics.RequestsTotal.Add(1)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", f.transportError(ctx, url, err)
	}
	defer resp.Body.Close()

	if f.metrics != nil {
		f.metrics.ObserveStatus(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		fe := &types.FetchError{
			Kind:       types.KindNoContent,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			fe.Retryable = true
			fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		case resp.StatusCode >= 500:
			fe.Retryable = true
		}
		f.logger.Warn("no usable content",
			"url", url,
			"status", resp.StatusCode,
			"retries_remaining", retriesRemaining,
		)
		return "", fe
	}

	raw, err := readLimited(resp.Body, f.cfg.MaxBodySize)
	if f.metrics != nil {
		f.metrics.BytesDownloaded.Add(int64(len(raw)))
	}
	if err != nil && !errors.Is(err, types.ErrBodyTooLarge) {
		return "", f.transportError(ctx, url, err)
	}
	// a blank body carries no encoding header worth honouring
	if err == nil && len(bytes.TrimSpace(raw)) > 0 {
		raw, err = decompress(resp.Header.Get("Content-Encoding"), raw, f.cfg.MaxBodySize)
		if err != nil && !errors.Is(err, types.ErrBodyTooLarge) {
			return "", f.decodeError(url, resp.StatusCode, err)
		}
	}
	if err != nil {
		f.logger.Warn("no usable content",
			"url", url,
			"status", resp.StatusCode,
			"reason", "body too large",
			"limit", f.cfg.MaxBodySize,
			"retries_remaining", retriesRemaining,
		)
		return "", &types.FetchError{
			Kind:       types.KindNoContent,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		if f.metrics != nil {
			f.metrics.EmptyResponses.Add(1)
		}
		f.logger.Warn("no usable content",
			"url", url,
			"status", resp.StatusCode,
			"reason", "empty body",
			"retries_remaining", retriesRemaining,
		)
		return "", &types.FetchError{
			Kind:       types.KindNoContent,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        types.ErrEmptyResponse,
			Retryable:  true,
		}
	}

	body, err := transcode(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return "", f.decodeError(url, resp.StatusCode, err)
	}

	f.logger.Info("page fetched",
		"url", url,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
		"retries_remaining", retriesRemaining,
	)
	return body, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func (f *HTTPFetcher) setHeaders(req *http.Request) {
	ua := f.cfg.UserAgent
	if ua == "" {
		ua = "marketscrape/" + config.Version
	}
	req.Header.Set("User-Agent", ua)
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	if f.cfg.Accept != "" {
		req.Header.Set("Accept", f.cfg.Accept)
	}
	if f.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
}

func (f *HTTPFetcher) transportError(ctx context.Context, url string, err error) error {
	if f.metrics != nil {
		f.metrics.TransportFailures.Add(1)
	}
	return &types.FetchError{
		Kind:      types.KindTransport,
		URL:       url,
		Err:       err,
		Retryable: isRetryableError(ctx, err),
	}
}

func (f *HTTPFetcher) decodeError(url string, status int, err error) error {
	if f.metrics != nil {
		f.metrics.TransportFailures.Add(1)
	}
	return &types.FetchError{
		Kind:       types.KindTransport,
		URL:        url,
		StatusCode: status,
		Err:        fmt.Errorf("decode body: %w", err),
	}
}

// readLimited reads r to the end. When limit is positive and r holds more
// than limit bytes it returns the first limit bytes and ErrBodyTooLarge.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return data, err
	}
	if int64(len(data)) > limit {
		return data[:limit], types.ErrBodyTooLarge
	}
	return data, nil
}

// decompress undoes the Content-Encoding of raw. The decoded size is held
// to limit as well.
func decompress(encoding string, raw []byte, limit int64) ([]byte, error) {
	reader, err := decompressReader(encoding, raw)
	if err != nil {
		return nil, err
	}
	if rc, ok := reader.(io.Closer); ok {
		defer rc.Close()
	}
	return readLimited(reader, limit)
}

// transcode converts data to UTF-8 using the Content-Type header or the
// document's own meta charset.
func transcode(contentType string, data []byte) (string, error) {
	utf8Reader, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("charset: %w", err)
	}
	out, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// decompressReader wraps raw with the decompressor for encoding.
// Handles gzip, deflate (zlib-wrapped or raw) and brotli.
func decompressReader(encoding string, raw []byte) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			return zr, nil
		}
		return flate.NewReader(bytes.NewReader(raw)), nil
	case "br":
		return brotli.NewReader(bytes.NewReader(raw)), nil
	default:
		return bytes.NewReader(raw), nil
	}
}

// isRetryableError checks if a network error warrants a retry.
// Covers client timeouts, connection resets, unexpected EOF and refused
// connections. Cancellation of the caller's own context is never retryable.
func isRetryableError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs < 0 {
			secs = 0
		}
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

// RandomDelay returns a random delay around the base duration (±25%).
func RandomDelay(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}

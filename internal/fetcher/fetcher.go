package fetcher

import (
	"context"
)

// Fetcher retrieves the HTML of a page. Implementations make exactly one
// attempt per call; retrying is up to the caller.
type Fetcher interface {
	// Fetch returns the page body decoded to UTF-8 text. retriesRemaining
	// is informational and only logged.
	Fetch(ctx context.Context, sess *Session, url string, retriesRemaining int) (string, error)

	// Close releases any resources held by the fetcher.
	Close() error
}

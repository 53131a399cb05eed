package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptyResponse = errors.New("empty response body")
	ErrMaxRetries    = errors.New("max retries exceeded")
	ErrUnknownSite   = errors.New("no extractor registered for site")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrBodyTooLarge  = errors.New("response body exceeds size limit")
)

// FetchErrorKind separates hard transport failures from responses that
// arrived but carried nothing usable.
type FetchErrorKind int

const (
	// KindTransport covers DNS, dial, TLS, timeout and body read failures.
	KindTransport FetchErrorKind = iota
	// KindNoContent covers non-2xx statuses, empty and oversized bodies.
	KindNoContent
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsTransport reports whether err is a FetchError of kind KindTransport.
func IsTransport(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindTransport
}

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL  string
	Site string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (site=%q): %v", e.URL, e.Site, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Dest    string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Dest != "" {
		return fmt.Sprintf("storage error (%s, %s): %v", e.Backend, e.Dest, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

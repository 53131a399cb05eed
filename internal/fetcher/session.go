package fetcher

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// Session carries the cookie state of one run. Every Fetch made with the
// same Session sends the cookies earlier responses set, which is what lets
// sources that gate results behind a cookie handshake answer the second
// request. Sessions are independent: concurrent runs each need their own.
//
// A Session is safe for concurrent use.
type Session struct {
	jar *cookiejar.Jar
}

// NewSession creates an empty Session.
func NewSession() (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{jar: jar}, nil
}

// Jar returns the underlying cookie jar.
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// Cookies returns the cookies that would be sent to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}

// HasCookies reports whether any cookie would be sent to rawURL.
func (s *Session) HasCookies(rawURL string) bool {
	return len(s.Cookies(rawURL)) > 0
}

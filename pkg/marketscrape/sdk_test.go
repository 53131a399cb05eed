package marketscrape

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/marketscrape/internal/types"
)

const amazonPage = `<html><body>
<div data-component-type="s-search-result"><h2 class="a-size-base-plus"><span>Fone JBL</span></h2>
<a class="a-link-normal" href="/dp/B01">x</a><span class="a-offscreen">R$ 199,90</span></div>
</body></html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSearch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("k")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(amazonPage))
	}))
	defer srv.Close()

	s := New(WithLogger(quietLogger()), WithBaseURL(Amazon, srv.URL+"/s"))
	listings, err := s.Search(context.Background(), Amazon, "fone jbl")
	require.NoError(t, err)

	assert.Equal(t, "fone jbl", query)
	require.Len(t, listings, 1)
	assert.Equal(t, Listing{Title: "Fone JBL", Price: "R$ 199,90", URL: srv.URL + "/dp/B01"}, listings[0])
}

func TestSearchEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>nada</p></body></html>"))
	}))
	defer srv.Close()

	s := New(WithLogger(quietLogger()), WithBaseURL(OLX, srv.URL+"/brasil"))
	listings, err := s.Search(context.Background(), OLX, "bicicleta")
	require.NoError(t, err)
	assert.NotNil(t, listings)
	assert.Empty(t, listings)
}

func TestSearchNoContent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := New(
		WithLogger(quietLogger()),
		WithBaseURL(MercadoLivre, srv.URL+"/"),
		WithRetries(2),
		WithRetryDelay(time.Millisecond),
	)
	_, err := s.Search(context.Background(), MercadoLivre, "cadeira")

	var fe *types.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	assert.Equal(t, 1, calls, "a 403 is not retried")
}

func TestSearchUnknownSite(t *testing.T) {
	_, err := New(WithLogger(quietLogger())).Search(context.Background(), "eBay", "x")
	assert.ErrorIs(t, err, types.ErrUnknownSite)
}

func TestSearchInvalidOptions(t *testing.T) {
	s := New(WithLogger(quietLogger()), WithRetries(-1))
	_, err := s.Search(context.Background(), OLX, "x")
	assert.Error(t, err)

	s = New(WithLogger(quietLogger()), WithProxy("ftp://proxy:21"))
	_, err = s.Search(context.Background(), OLX, "x")
	assert.Error(t, err)
}

func TestSites(t *testing.T) {
	assert.Equal(t, []string{MercadoLivre, OLX, Amazon}, New().Sites())
}

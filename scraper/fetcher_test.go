package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rental_scrooper/config"
	"rental_scrooper/httputil"
	"rental_scrooper/models"
)

func newTestFetcher(t *testing.T, srv *httptest.Server, retries int) *HTTPFetcher {
	t.Helper()
	client, err := httputil.NewClient(config.HTTPConfig{
		UserAgent: "test",
		Timeout:   5 * time.Second,
	}, nil)
	require.NoError(t, err)

	site := &config.SiteConfig{ID: "test", URLTemplate: srv.URL + "/zufang/pg%d/"}
	return NewHTTPFetcher(site, client, RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
}

func TestHTTPFetcher_ParsesPage(t *testing.T) {
	page := loadFixture(t, "zufang_page.html")
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, srv, 2).FetchPage(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "/zufang/pg4/", path)
	require.Equal(t, models.PageStatusOK, result.Status)
	require.Len(t, result.Listings, 3)
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	page := loadFixture(t, "zufang_page.html")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(page)
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, srv, 3).FetchPage(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load())
	require.Len(t, result.Listings, 3)
}

func TestHTTPFetcher_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, srv, 3).FetchPage(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, int32(1), hits.Load())
	require.True(t, result.IsEmpty())
	require.Equal(t, models.PageStatusFetchFailed, result.Status)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusForbidden, statusErr.Code)
}

func TestHTTPFetcher_ExhaustedRetriesLookEmpty(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	result, err := newTestFetcher(t, srv, 2).FetchPage(context.Background(), 1)
	require.Error(t, err)
	require.Equal(t, int32(3), hits.Load(), "one attempt plus two retries")
	require.True(t, result.IsEmpty())
}

func TestClassifyStatus(t *testing.T) {
	for _, code := range []int{200, 301} {
		require.NoError(t, classifyStatus(code), fmt.Sprint(code))
	}
	for _, code := range []int{429, 500, 503} {
		err := classifyStatus(code)
		require.Error(t, err)
		var se *StatusError
		require.True(t, errors.As(err, &se))
	}
}

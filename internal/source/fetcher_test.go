package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivmel/modelbooth-bot/internal/config"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFetcher(config.Config{
		SourceAPIKey:   "source-key",
		SourceAPIURL:   srv.URL,
		SourceProvider: "instagram",
		RequestTimeout: 5 * time.Second,
	}, nil)
}

func TestFetchNestedItemsShape(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/instagram/posts", r.URL.Path)
		assert.Equal(t, "aria", r.URL.Query().Get("handle"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer source-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"items":[{"image_url":"https://img/1"},{"image_url":"https://img/2"}]}}`))
	})

	urls, err := f.Fetch(context.Background(), "@aria", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/1", "https://img/2"}, urls)
}

func TestFetchPostsShape(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"posts":[{"display_url":"https://img/1"}]}`))
	})

	urls, err := f.Fetch(context.Background(), "aria", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/1"}, urls)
}

func TestFetchBareListShape(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["https://img/1","https://img/2"]`))
	})

	urls, err := f.Fetch(context.Background(), "aria", 5)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
}

func TestFetchTrimsToLimit(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["a","b","c","d"]`))
	})

	urls, err := f.Fetch(context.Background(), "aria", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, urls)
}

func TestFetchErrorStatus(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := f.Fetch(context.Background(), "aria", 3)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFetchUnknownShape(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	_, err := f.Fetch(context.Background(), "aria", 3)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFetchEmptyHandle(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := f.Fetch(context.Background(), "  ", 3)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

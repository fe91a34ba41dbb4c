package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollyFetcher_FetchReturnsPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html><body>listing</body></html>")
	}))
	defer srv.Close()

	fetcher, err := NewCollyFetcher(Profile{
		UserAgent: "capture-test/0.1",
		Timeout:   5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	resp, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Text, "listing")
}

func TestCollyFetcher_FetchSameURLTwice(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	fetcher, err := NewCollyFetcher(Profile{
		UserAgent: "capture-test/0.1",
		Timeout:   5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := fetcher.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, "ok", resp.Text)
	}
	require.Equal(t, 2, hits)
}

func TestCollyFetcher_FetchUnreachableHostFails(t *testing.T) {
	t.Parallel()

	fetcher, err := NewCollyFetcher(Profile{
		UserAgent: "capture-test/0.1",
		Timeout:   time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
}

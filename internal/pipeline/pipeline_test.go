package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingotools/capture/internal/capture"
	"github.com/kingotools/capture/internal/transport"
)

func newTestClient(t *testing.T, baseURL string) *transport.Client {
	t.Helper()
	client, err := transport.NewClient(transport.Profile{
		BaseURL:   baseURL,
		UserAgent: "capture-test/0.1",
		Timeout:   5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func makeRequests(url string, codes ...string) []Request {
	requests := make([]Request, 0, len(codes))
	for _, code := range codes {
		requests = append(requests, Request{
			Item: capture.WorkItem{Code: code},
			URL:  url,
			Form: map[string]string{"Sel_KC": code},
		})
	}
	return requests
}

func TestPool_Run_DrainsQueueAndFiresOnComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "page")
	}))
	defer srv.Close()

	var handled sync.Map
	var completed atomic.Bool
	pool := New(Config{
		TaskID:     "task-1",
		Threads:    3,
		OnComplete: func() { completed.Store(true) },
	}, newTestClient(t, srv.URL), makeRequests(srv.URL, "A", "B", "C", "D"), func(_ context.Context, item capture.WorkItem, resp *transport.Response) error {
		require.Equal(t, "page", resp.Text)
		handled.Store(item.Code, true)
		return nil
	}, zap.NewNop())

	pool.Run(context.Background())

	require.True(t, completed.Load())
	snap := pool.Snapshot()
	require.Equal(t, capture.RuntimeStopped, snap.State)
	require.Equal(t, 0, snap.Queued)
	require.Equal(t, 4, snap.Succeeded)
	require.Equal(t, 0, snap.Failed)
	for _, code := range []string{"A", "B", "C", "D"} {
		_, ok := handled.Load(code)
		require.True(t, ok)
	}
}

func TestPool_Run_ItemFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "page")
	}))
	defer srv.Close()

	var failedItems []string
	var mu sync.Mutex
	pool := New(Config{
		TaskID:  "task-2",
		Threads: 1,
		OnItemError: func(item capture.WorkItem, err error) {
			mu.Lock()
			defer mu.Unlock()
			failedItems = append(failedItems, item.Code)
			require.EqualError(t, err, "bad page")
		},
	}, newTestClient(t, srv.URL), makeRequests(srv.URL, "A", "B", "C"), func(_ context.Context, item capture.WorkItem, _ *transport.Response) error {
		if item.Code == "B" {
			return errors.New("bad page")
		}
		return nil
	}, zap.NewNop())

	pool.Run(context.Background())

	snap := pool.Snapshot()
	require.Equal(t, 2, snap.Succeeded)
	require.Equal(t, 1, snap.Failed)
	require.Equal(t, []string{"B"}, failedItems)
}

func TestPool_StopAbandonsQueuedItems(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		first.Do(func() {
			close(started)
			<-release
		})
		_, _ = io.WriteString(w, "page")
	}))
	defer srv.Close()

	var completed atomic.Bool
	pool := New(Config{
		TaskID:     "task-3",
		Threads:    1,
		OnComplete: func() { completed.Store(true) },
	}, newTestClient(t, srv.URL), makeRequests(srv.URL, "A", "B", "C"), func(context.Context, capture.WorkItem, *transport.Response) error {
		return nil
	}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	<-started
	require.Equal(t, capture.RuntimeRunning, pool.State())
	pool.Stop()
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}

	snap := pool.Snapshot()
	require.Equal(t, capture.RuntimeStopped, snap.State)
	require.Equal(t, 1, snap.Succeeded)
	require.Equal(t, 2, snap.Queued)
	require.False(t, completed.Load())
}

func TestPool_StartResumesRemainingQueue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "page")
	}))
	defer srv.Close()

	var completed atomic.Bool
	pool := New(Config{
		TaskID:     "task-4",
		Threads:    2,
		OnComplete: func() { completed.Store(true) },
	}, newTestClient(t, srv.URL), makeRequests(srv.URL, "A", "B", "C"), func(context.Context, capture.WorkItem, *transport.Response) error {
		return nil
	}, zap.NewNop())

	pool.Stop()
	pool.Run(context.Background())
	require.Equal(t, 3, pool.Snapshot().Queued)
	require.False(t, completed.Load())

	require.NoError(t, pool.Start())
	require.Eventually(t, func() bool {
		return completed.Load()
	}, 5*time.Second, 10*time.Millisecond)

	snap := pool.Snapshot()
	require.Equal(t, capture.RuntimeStopped, snap.State)
	require.Equal(t, 0, snap.Queued)
	require.Equal(t, 3, snap.Succeeded)
}

func TestPool_StartWhileRunningFails(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		first.Do(func() {
			close(started)
			<-release
		})
		_, _ = io.WriteString(w, "page")
	}))
	defer srv.Close()

	pool := New(Config{
		TaskID:  "task-5",
		Threads: 1,
	}, newTestClient(t, srv.URL), makeRequests(srv.URL, "A", "B"), func(context.Context, capture.WorkItem, *transport.Response) error {
		return nil
	}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	<-started
	require.ErrorIs(t, pool.Start(), capture.ErrRuntimeRunning)
	close(release)
	<-done
}

func TestPool_TransportFailureCountsAsFailed(t *testing.T) {
	t.Parallel()

	client, err := transport.NewClient(transport.Profile{
		BaseURL:   "http://127.0.0.1:1",
		UserAgent: "capture-test/0.1",
		Timeout:   time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	pool := New(Config{
		TaskID:  "task-6",
		Threads: 1,
	}, client, makeRequests("http://127.0.0.1:1", "A"), func(context.Context, capture.WorkItem, *transport.Response) error {
		return nil
	}, zap.NewNop())

	pool.Run(context.Background())
	snap := pool.Snapshot()
	require.Equal(t, 1, snap.Failed)
	require.Equal(t, 0, snap.Succeeded)
}

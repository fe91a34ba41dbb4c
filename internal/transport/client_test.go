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

func testProfile(baseURL string) Profile {
	return Profile{
		BaseURL:   baseURL,
		UserAgent: "capture-test/0.1",
		Timeout:   5 * time.Second,
	}
}

func TestClient_Get_ReturnsDecodedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "capture-test/0.1", r.Header.Get("User-Agent"))
		require.Equal(t, "value", r.Header.Get("X-Extra"))
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc123"})
		_, _ = io.WriteString(w, "hello")
	}))
	defer srv.Close()

	client, err := NewClient(testProfile(srv.URL), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), srv.URL, map[string]string{"X-Extra": "value"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, "abc123", resp.Cookie("ASP.NET_SessionId"))
	require.Equal(t, "", resp.Cookie("missing"))
}

func TestClient_SetCookie_CarriedOnSubsequentRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("ASP.NET_SessionId")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, cookie.Value)
	}))
	defer srv.Close()

	client, err := NewClient(testProfile(srv.URL), zap.NewNop())
	require.NoError(t, err)
	client.SetCookie("ASP.NET_SessionId", "session-1")

	resp, err := client.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "session-1", resp.Text)
}

func TestClient_PostForm_SubmitsEncodedBody(t *testing.T) {
	t.Parallel()

	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client, err := NewClient(testProfile(srv.URL), zap.NewNop())
	require.NoError(t, err)

	resp, err := client.PostForm(context.Background(), srv.URL, map[string]string{
		"gs":      "2",
		"Sel_KC":  "A01",
		"txt_yzm": "",
	}, map[string]string{"Referer": srv.URL})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	require.Equal(t, "Sel_KC=A01&gs=2&txt_yzm=", gotBody)
}

func TestClient_Sleep_HonorsContextCancellation(t *testing.T) {
	t.Parallel()

	profile := testProfile("http://example.invalid")
	profile.Sleep = time.Minute
	client, err := NewClient(profile, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.Sleep(ctx), context.Canceled)
}

func TestClient_Sleep_ZeroIntervalReturnsImmediately(t *testing.T) {
	t.Parallel()

	client, err := NewClient(testProfile("http://example.invalid"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, client.Sleep(context.Background()))
}

func TestNewClient_UnknownCharsetFails(t *testing.T) {
	t.Parallel()

	profile := testProfile("http://example.invalid")
	profile.Charset = "bogus-charset"
	_, err := NewClient(profile, zap.NewNop())
	require.Error(t, err)
}

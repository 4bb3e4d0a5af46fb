// internal/browser/network/client_test.go
package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
)

func newTestClient(t *testing.T, runTimeout time.Duration) *Client {
	t.Helper()
	b := budget.New(runTimeout, 0)
	c := NewClient(ClientConfig{UserAgent: "test-ua"}, b, zap.NewNop())
	t.Cleanup(c.CloseIdleConnections)
	return c
}

func TestFetchDocument_FollowsRedirectsAndReportsFinalURL(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>landed</body></html>"))
	})

	c := newTestClient(t, 5*time.Second)
	doc, err := c.FetchDocument(context.Background(), srv.URL+"/start", 2*time.Second)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/landing", doc.FinalURL.String())
	assert.Contains(t, doc.Text, "landed")
}

func TestFetchDocument_DecodesLegacyCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in Latin-1: 0xE9 for é.
		_, _ = w.Write([]byte{'c', 'a', 'f', 0xE9})
	}))
	defer srv.Close()

	c := newTestClient(t, 5*time.Second)
	doc, err := c.FetchDocument(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "café", doc.Text)
}

func TestFetchDocument_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := newTestClient(t, 5*time.Second)
	_, err := c.FetchDocument(context.Background(), srv.URL, time.Second)
	assert.ErrorContains(t, err, "status 410")
}

func TestFetchScript_SendsUserAgentAndIgnoresContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-ua", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/plain") // mislabeled JS
		_, _ = w.Write([]byte("window.__x = 1;"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/app.js")
	c := newTestClient(t, 5*time.Second)
	code, err := c.FetchScript(context.Background(), u, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "window.__x = 1;", code)
}

func TestFetchScript_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	u, _ := url.Parse(srv.URL + "/missing.js")
	c := newTestClient(t, 5*time.Second)
	_, err := c.FetchScript(context.Background(), u, time.Second)
	assert.ErrorContains(t, err, "status 404")
}

func TestDo_TimeoutClampedToBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("slow"))
	}))
	defer srv.Close()

	// Run budget far shorter than both the server delay and the op timeout.
	c := newTestClient(t, 80*time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	start := time.Now()
	_, err := c.Do(context.Background(), req, 30*time.Second)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "request must abort at the budget, not the op timeout")
}

func TestDo_ExhaustedBudgetFailsFast(t *testing.T) {
	b := budget.New(time.Millisecond, 0)
	time.Sleep(5 * time.Millisecond)
	c := NewClient(ClientConfig{}, b, nil)

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	_, err := c.Do(context.Background(), req, time.Second)
	assert.ErrorContains(t, err, "budget exhausted")
}

func TestClient_PassThroughHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("X-Custom"))
		assert.Empty(t, r.Header.Get("Connection-Override"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	b := budget.New(5*time.Second, 0)
	c := NewClient(ClientConfig{Headers: map[string]string{
		"X-Custom":   "abc",
		"Connection": "close", // hop-by-hop, must be dropped
	}}, b, nil)
	defer c.CloseIdleConnections()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req, time.Second)
	require.NoError(t, err)
	resp.Body.Close()
}

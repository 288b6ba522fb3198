// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agenttools/internal/config"
	"github.com/jeranaias/agenttools/internal/session"
)

func newWebSession(t *testing.T, web config.WebConfig) *session.Session {
	t.Helper()
	if web.UserAgent == "" {
		web.UserAgent = "agenttools-test"
	}
	if web.TimeoutSecs == 0 {
		web.TimeoutSecs = 5
	}
	return newTestSessionWith(t, nil, session.WithWeb(web))
}

// =============================================================================
// SEARCH WEB TESTS
// =============================================================================

func TestSearchWeb(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "agenttools-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"search_results": [
			{"title": "Go", "date": "2024-01-01", "url": "https://go.dev", "snippet": "The Go language"},
			{"title": "Tour", "date": "", "url": "https://go.dev/tour", "snippet": "A tour", "content": "Page body"}
		]}`))
	}))
	defer srv.Close()

	sess := newWebSession(t, config.WebConfig{Search: config.ServiceConfig{
		BaseURL:       srv.URL,
		APIKey:        "secret",
		CustomHeaders: map[string]string{"X-Custom": "yes"},
	}})

	result := call(t, sess, "search_web", map[string]interface{}{"query": "golang", "include_content": true})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Found 2 results for query: golang", result.Message)

	want := "Title: Go\nDate: 2024-01-01\nURL: https://go.dev\nSummary: The Go language\n" +
		"\n---\n\n" +
		"Title: Tour\nDate: \nURL: https://go.dev/tour\nSummary: A tour\n" +
		"\n\nPage body\n"
	assert.Equal(t, want, result.Output)

	assert.Equal(t, searchRequest{TextQuery: "golang", Limit: 5, EnablePageCrawling: true, TimeoutSeconds: 30}, got)
}

func TestSearchWeb_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	}))
	defer garbage.Close()

	tests := []struct {
		name string
		svc  config.ServiceConfig
		want string
	}{
		{"not configured", config.ServiceConfig{}, "Search service is not configured."},
		{"no api key", config.ServiceConfig{BaseURL: failing.URL}, "Search service is not properly configured."},
		{"bad status", config.ServiceConfig{BaseURL: failing.URL, APIKey: "k"}, "Failed to search. Status: 503."},
		{"bad body", config.ServiceConfig{BaseURL: garbage.URL, APIKey: "k"}, "Failed to parse search results."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newWebSession(t, config.WebConfig{Search: tt.svc})
			result := call(t, sess, "search_web", map[string]interface{}{"query": "q"})
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tt.want)
		})
	}
}

// =============================================================================
// FETCH URL TESTS
// =============================================================================

const testPage = `<!DOCTYPE html>
<html>
<head><title>Test Page</title><style>body { color: red; }</style></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<script>alert("hi");</script>
<h1>Welcome</h1>
<p>First   paragraph
   of text.</p>
<ul><li>item one</li><li><p>item two</p></li></ul>
<footer>Copyright</footer>
</body>
</html>`

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(testPage))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("just <b>text</b>"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	})
	mux.HandleFunc("/blank", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><script>x()</script></body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchURL_HTML(t *testing.T) {
	srv := newPageServer(t)
	sess := newWebSession(t, config.WebConfig{})

	result := call(t, sess, "fetch_url", map[string]interface{}{"url": srv.URL + "/page"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "The returned content is the main text content extracted from the page.", result.Message)
	assert.Equal(t, "# Test Page\n\n# Welcome\n\nFirst paragraph of text.\n\n- item one\n- item two", result.Output)
	assert.NotContains(t, result.Output, "alert")
	assert.NotContains(t, result.Output, "Copyright")
}

func TestFetchURL_DirectResponses(t *testing.T) {
	srv := newPageServer(t)
	sess := newWebSession(t, config.WebConfig{})

	result := call(t, sess, "fetch_url", map[string]interface{}{"url": srv.URL + "/plain"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "just <b>text</b>", result.Output)
	assert.Equal(t, "The returned content is the full content of the page.", result.Message)

	result = call(t, sess, "fetch_url", map[string]interface{}{"url": srv.URL + "/empty"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "The response body is empty.", result.Message)

	result = call(t, sess, "fetch_url", map[string]interface{}{"url": srv.URL + "/blank"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Failed to extract meaningful content from the page.")

	result = call(t, sess, "fetch_url", map[string]interface{}{"url": srv.URL + "/missing"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Failed to fetch URL. Status: 404.")
}

func TestFetchURL_InvalidURL(t *testing.T) {
	sess := newWebSession(t, config.WebConfig{})

	for _, u := range []string{"ftp://example.com/x", "not a url", "/relative"} {
		result := call(t, sess, "fetch_url", map[string]interface{}{"url": u})
		assert.False(t, result.Success, u)
		assert.Contains(t, result.Error, "Invalid URL", u)
	}
}

func TestFetchURL_Service(t *testing.T) {
	pages := newPageServer(t)
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/markdown", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte("# Extracted\n\nfrom " + body["url"]))
	}))
	defer service.Close()

	sess := newWebSession(t, config.WebConfig{Fetch: config.ServiceConfig{BaseURL: service.URL, APIKey: "k"}})
	result := call(t, sess, "fetch_url", map[string]interface{}{"url": pages.URL + "/page"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "# Extracted\n\nfrom "+pages.URL+"/page", result.Output)
	assert.Equal(t, "The returned content is the main content extracted from the page.", result.Message)
}

func TestFetchURL_ServiceFailureFallsBack(t *testing.T) {
	pages := newPageServer(t)
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer service.Close()

	sess := newWebSession(t, config.WebConfig{Fetch: config.ServiceConfig{BaseURL: service.URL, APIKey: "k"}})
	result := call(t, sess, "fetch_url", map[string]interface{}{"url": pages.URL + "/plain"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "just <b>text</b>", result.Output)
}

func TestFetchURL_BoundsOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 60000)))
	}))
	defer srv.Close()
	sess := newWebSession(t, config.WebConfig{})

	result := call(t, sess, "fetch_url", map[string]interface{}{"url": srv.URL})
	require.True(t, result.Success, result.Error)
	assert.True(t, result.Truncated)
	assert.True(t, strings.HasSuffix(result.Output, "[...truncated]"))
	assert.Contains(t, result.Message, "(output truncated)")
}

func TestExtractMainText_PrefersMain(t *testing.T) {
	html := `<html><body><div><p>sidebar</p></div><main><h2>Real</h2><pre>  code
  block</pre></main></body></html>`

	text, err := extractMainText([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, "## Real\n\n  code\n  block", text)
}

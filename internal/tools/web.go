// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/jeranaias/agenttools/internal/config"
	"github.com/jeranaias/agenttools/internal/output"
	"github.com/jeranaias/agenttools/internal/session"
)

const (
	maxResponseBytes    = 10 << 20
	searchTimeoutSecs   = 30
	defaultSearchLimit  = 5
	maxSearchLimit      = 20
	browserUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultWebTimeout   = 30 * time.Second
	truncatedSuffix     = " (output truncated)"
	noiseSelectors      = "script, style, noscript, nav, footer, header, aside, iframe, svg, form"
	contentBlockSelects = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote"
)

// =============================================================================
// HTTP CLIENT
// =============================================================================

// webClient is the rate-limited HTTP client shared by the web tools of one
// session.
type webClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newWebClient(sess *session.Session) *webClient {
	cfg := sess.Web()
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultWebTimeout
	}
	c := &webClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// do waits for the limiter, sends req and reads at most maxResponseBytes of
// the body.
func (c *webClient) do(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}

// postJSON sends payload to a configured service with bearer auth.
func (c *webClient) postJSON(ctx context.Context, svc config.ServiceConfig, payload interface{}, accept string) (*http.Response, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, svc.BaseURL, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+svc.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for k, v := range svc.CustomHeaders {
		req.Header.Set(k, v)
	}
	return c.do(ctx, req)
}

// boundWeb bounds web text by total size only.
func boundWeb(sess *session.Session, text string) (string, bool) {
	return output.Bound(text, sess.Limits().MaxChars, 0)
}

// =============================================================================
// SEARCH WEB EXECUTOR
// =============================================================================

func newSearchWebTool(sess *session.Session, web *webClient) *Tool {
	return &Tool{
		Name: "search_web",
		Description: `Search the internet to get the latest information.

Finds news, documents, release notes, blog posts, papers and other web content.
Requires a configured search service.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "query",
					Type:        "string",
					Required:    true,
					Description: "The query text to search for.",
				},
				{
					Name:        "limit",
					Type:        "integer",
					Description: "The number of results to return. Prefer a more concrete query over a larger limit.",
					Default:     defaultSearchLimit,
					Minimum:     bound(1),
					Maximum:     bound(maxSearchLimit),
				},
				{
					Name:        "include_content",
					Type:        "boolean",
					Description: "Include the content of the pages in the results. This can consume a large amount of tokens.",
					Default:     false,
				},
			},
		},
		Group:     GroupWeb,
		RiskLevel: RiskMedium,
		Executor:  &SearchWebExecutor{sess: sess, web: web},
	}
}

// SearchWebExecutor implements search_web.
type SearchWebExecutor struct {
	sess *session.Session
	web  *webClient
}

type searchRequest struct {
	TextQuery          string `json:"text_query"`
	Limit              int    `json:"limit"`
	EnablePageCrawling bool   `json:"enable_page_crawling"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
}

type searchResult struct {
	SiteName string `json:"site_name"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Content  string `json:"content"`
	Date     string `json:"date"`
}

type searchResponse struct {
	SearchResults *[]searchResult `json:"search_results"`
}

// Execute queries the search service.
func (e *SearchWebExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	query := getStringParam(params, "query", "")
	limit := getIntParam(params, "limit", defaultSearchLimit)
	includeContent := getBoolParam(params, "include_content", false)

	if strings.TrimSpace(query) == "" {
		return failure("Query cannot be empty."), nil
	}

	svc := e.sess.Web().Search
	if !svc.Enabled() {
		return failure("Search service is not configured. You need to provide a search service configuration."), nil
	}
	if svc.APIKey == "" {
		return failure("Search service is not properly configured. You may want to try other methods to search."), nil
	}

	resp, body, err := e.web.postJSON(ctx, svc, searchRequest{
		TextQuery:          query,
		Limit:              limit,
		EnablePageCrawling: includeContent,
		TimeoutSeconds:     searchTimeoutSecs,
	}, "")
	if err != nil {
		return failure("Network error while searching: %v", err), nil
	}
	if resp.StatusCode != http.StatusOK {
		return failure("Failed to search. Status: %d. This may indicate that the search service is currently unavailable.", resp.StatusCode), nil
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.SearchResults == nil {
		if err == nil {
			err = fmt.Errorf("missing search_results")
		}
		return failure("Failed to parse search results. Error: %v. This may indicate that the search service is currently unavailable.", err), nil
	}
	results := *parsed.SearchResults

	var parts []string
	for i, r := range results {
		if i > 0 {
			parts = append(parts, "---\n")
		}
		parts = append(parts, fmt.Sprintf("Title: %s\nDate: %s\nURL: %s\nSummary: %s\n", r.Title, r.Date, r.URL, r.Snippet))
		if r.Content != "" {
			parts = append(parts, "\n"+r.Content+"\n")
		}
	}

	out, truncated := boundWeb(e.sess, strings.Join(parts, "\n"))
	message := fmt.Sprintf("Found %d results for query: %s", len(results), query)
	if truncated {
		message += truncatedSuffix
	}
	result := success(out, message)
	result.Truncated = truncated
	return result, nil
}

// =============================================================================
// FETCH URL EXECUTOR
// =============================================================================

func newFetchURLTool(sess *session.Session, web *webClient) *Tool {
	return &Tool{
		Name: "fetch_url",
		Description: `Fetch a web page from a URL and extract its main text content.

Plain text and markdown are returned as-is; HTML is reduced to its main text.
A configured fetch service is tried first, then a direct request.`,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "url",
					Type:        "string",
					Required:    true,
					Description: "The URL to fetch content from.",
				},
			},
		},
		Group:     GroupWeb,
		RiskLevel: RiskMedium,
		Executor:  &FetchURLExecutor{sess: sess, web: web},
	}
}

// FetchURLExecutor implements fetch_url.
type FetchURLExecutor struct {
	sess *session.Session
	web  *webClient
}

// Execute fetches the page through the service or directly.
func (e *FetchURLExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	rawURL := strings.TrimSpace(getStringParam(params, "url", ""))
	u, err := url.Parse(rawURL)
	if rawURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return failure("Invalid URL `%s`. Only absolute http and https URLs can be fetched.", rawURL), nil
	}

	if svc := e.sess.Web().Fetch; svc.Enabled() && svc.APIKey != "" {
		if result, ok := e.fetchWithService(ctx, svc, rawURL); ok {
			return result, nil
		}
	}
	return e.fetchDirect(ctx, rawURL), nil
}

// fetchWithService returns false when the caller should fall back to a
// direct request.
func (e *FetchURLExecutor) fetchWithService(ctx context.Context, svc config.ServiceConfig, target string) (Result, bool) {
	resp, body, err := e.web.postJSON(ctx, svc, map[string]string{"url": target}, "text/markdown")
	if err != nil {
		e.sess.Logger().Debug("fetch service failed", "url", target, "error", err)
		return Result{}, false
	}
	if resp.StatusCode != http.StatusOK {
		e.sess.Logger().Debug("fetch service failed", "url", target, "status", resp.StatusCode)
		return Result{}, false
	}

	out, truncated := boundWeb(e.sess, string(body))
	message := "The returned content is the main content extracted from the page."
	if truncated {
		message += truncatedSuffix
	}
	result := success(out, message)
	result.Truncated = truncated
	return result, true
}

func (e *FetchURLExecutor) fetchDirect(ctx context.Context, target string) Result {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return failure("Invalid URL `%s`: %v", target, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, body, err := e.web.do(ctx, req)
	if err != nil {
		return failure("Failed to fetch URL due to network error: %v. This may indicate the URL is invalid or the server is unreachable.", err)
	}
	if resp.StatusCode >= 400 {
		return failure("Failed to fetch URL. Status: %d. This may indicate the page is not accessible or the server is down.", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/plain" || mediaType == "text/markdown" {
		out, truncated := boundWeb(e.sess, string(body))
		message := "The returned content is the full content of the page."
		if truncated {
			message += truncatedSuffix
		}
		result := success(out, message)
		result.Truncated = truncated
		return result
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return success("", "The response body is empty.")
	}

	text, err := extractMainText(body)
	if err != nil || text == "" {
		return failure("Failed to extract meaningful content from the page. This may indicate the page content is not suitable for text extraction, or the page requires JavaScript to render its content.")
	}

	out, truncated := boundWeb(e.sess, text)
	message := "The returned content is the main text content extracted from the page."
	if truncated {
		message += truncatedSuffix
	}
	result := success(out, message)
	result.Truncated = truncated
	return result
}

// =============================================================================
// HTML EXTRACTION
// =============================================================================

// extractMainText reduces an HTML document to its title and text blocks in
// document order. Headings become markdown headings and list items dashes.
func extractMainText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find(noiseSelectors).Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var sb strings.Builder
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		sb.WriteString("# " + title + "\n\n")
	}

	blocks := 0
	root.Find(contentBlockSelects).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are covered by their outermost block
		if s.ParentsFiltered(contentBlockSelects).Length() > 0 {
			return
		}
		tag := goquery.NodeName(s)
		if tag == "pre" {
			if text := strings.TrimRight(s.Text(), "\n"); strings.TrimSpace(text) != "" {
				sb.WriteString(text + "\n\n")
				blocks++
			}
			return
		}

		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString(strings.Repeat("#", int(tag[1]-'0')) + " " + text + "\n\n")
		case "li":
			sb.WriteString("- " + text + "\n")
		case "blockquote":
			sb.WriteString("> " + text + "\n\n")
		default:
			sb.WriteString(text + "\n\n")
		}
		blocks++
	})

	if blocks == 0 {
		if text := collapseSpace(root.Text()); text != "" {
			sb.WriteString(text + "\n")
			blocks++
		}
	}
	if blocks == 0 {
		return "", nil
	}
	return strings.TrimSpace(sb.String()), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

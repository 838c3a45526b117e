// Package search implements the web-search collaborator used to enrich
// prompts with current information. Sources are tried in order until one
// yields text: the DuckDuckGo instant-answer API, a Wikipedia page summary,
// then the DuckDuckGo HTML results page.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sentience/sentience/internal/core"
)

const (
	maxBodySize    = 1 << 20
	maxRelated     = 4
	maxHTMLResults = 4
	wikiExtractLen = 700
	wikiTermWords  = 4
	defaultTimeout = 5 * time.Second
	defaultUA      = "Mozilla/5.0 (compatible; sentience/1.0)"
	defaultDDGURL  = "https://api.duckduckgo.com/"
	defaultWikiURL = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	defaultHTMLURL = "https://html.duckduckgo.com/html/"
)

// Triggers are the substrings that make a prompt worth enriching with a
// live search.
var Triggers = []string{
	"latest", "news", "today", "current", "2024", "2025", "price",
	"who is", "what is happening", "recent", "now", "score", "weather", "stock",
}

// ShouldSearch reports whether prompt contains any trigger, ignoring case.
func ShouldSearch(prompt string) bool {
	p := strings.ToLower(prompt)
	for _, t := range Triggers {
		if strings.Contains(p, t) {
			return true
		}
	}
	return false
}

// Config for the search client
type Config struct {
	DuckDuckGoURL string
	WikipediaURL  string
	HTMLURL       string
	Timeout       time.Duration // overall budget for one Search call
	HTTPClient    *http.Client
}

// Client queries the public search sources
type Client struct {
	ddgURL     string
	wikiURL    string
	htmlURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a search client, filling unset fields with defaults
func NewClient(cfg Config) *Client {
	if cfg.DuckDuckGoURL == "" {
		cfg.DuckDuckGoURL = defaultDDGURL
	}
	if cfg.WikipediaURL == "" {
		cfg.WikipediaURL = defaultWikiURL
	}
	if cfg.HTMLURL == "" {
		cfg.HTMLURL = defaultHTMLURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		ddgURL:     cfg.DuckDuckGoURL,
		wikiURL:    cfg.WikipediaURL,
		htmlURL:    cfg.HTMLURL,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
}

// Search returns a digest of results for query. It returns
// core.ErrNoResults when every source came back empty, or the last
// transport error when none could be reached.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	sources := []func(context.Context, string) (string, error){
		c.instantAnswer,
		c.wikipedia,
		c.htmlResults,
	}
	for _, source := range sources {
		text, err := source(ctx, query)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("search %q: %w", query, lastErr)
	}
	return "", core.ErrNoResults
}

// ddgResponse is the subset of the instant-answer payload we read
type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	Definition    string `json:"Definition"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

func (c *Client) instantAnswer(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	body, err := c.get(ctx, c.ddgURL+"?"+params.Encode())
	if err != nil {
		return "", err
	}

	var data ddgResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("decode instant answer: %w", err)
	}

	var parts []string
	if data.AbstractText != "" {
		parts = append(parts, "Summary: "+data.AbstractText)
	}
	if data.Answer != "" {
		parts = append(parts, "Answer: "+data.Answer)
	}
	if data.Definition != "" {
		parts = append(parts, "Definition: "+data.Definition)
	}

	var topics []string
	for _, t := range data.RelatedTopics {
		if t.Text == "" {
			continue
		}
		topics = append(topics, "• "+t.Text)
		if len(topics) == maxRelated {
			break
		}
	}
	if len(topics) > 0 {
		parts = append(parts, "Related:\n"+strings.Join(topics, "\n"))
	}
	return strings.Join(parts, "\n\n"), nil
}

func (c *Client) wikipedia(ctx context.Context, query string) (string, error) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "", nil
	}
	if len(words) > wikiTermWords {
		words = words[:wikiTermWords]
	}
	term := strings.Join(words, "_")

	body, err := c.get(ctx, c.wikiURL+url.PathEscape(term))
	if err != nil {
		return "", err
	}

	var page struct {
		Extract string `json:"extract"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return "", fmt.Errorf("decode wikipedia summary: %w", err)
	}
	if page.Extract == "" {
		return "", nil
	}
	extract := []rune(page.Extract)
	if len(extract) > wikiExtractLen {
		extract = extract[:wikiExtractLen]
	}
	return "Wikipedia: " + string(extract), nil
}

func (c *Client) htmlResults(ctx context.Context, query string) (string, error) {
	body, err := c.get(ctx, c.htmlURL+"?"+url.Values{"q": {query}}.Encode())
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parse results page: %w", err)
	}

	var results []string
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find(".result__a").First().Text())
		snippet := strings.TrimSpace(s.Find(".result__snippet").First().Text())
		if title == "" && snippet == "" {
			return true
		}
		line := "• " + title
		if snippet != "" {
			line += ": " + snippet
		}
		results = append(results, line)
		return len(results) < maxHTMLResults
	})
	if len(results) == 0 {
		return "", nil
	}
	return "Web results:\n" + strings.Join(results, "\n"), nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUA)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return body, nil
}

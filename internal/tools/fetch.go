package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sentience/sentience/internal/logging"
)

const (
	maxToolBody  = 256 * 1024
	newsStories  = 5
	weatherQuery = "?format=4"
)

var weatherPrefix = regexp.MustCompile(`^weather\s+(in\s+)?`)

func (e *Executor) weather(ctx context.Context, text string) (string, bool) {
	city := strings.TrimSpace(weatherPrefix.ReplaceAllString(text, ""))
	if city == "" {
		return WeatherUnavailable, true
	}

	body, err := e.get(ctx, e.cfg.WeatherURL+url.PathEscape(city)+weatherQuery)
	if err != nil {
		logging.WithFields(map[string]interface{}{"tool": "weather", "city": city}).Warn("Weather lookup failed: %v", err)
		return WeatherUnavailable, true
	}

	data := strings.TrimSpace(string(body))
	if data == "" {
		return WeatherUnavailable, true
	}
	return fmt.Sprintf("Weather for %s:\n%s", city, data), true
}

type hnStory struct {
	Title string `json:"title"`
}

func (e *Executor) news(ctx context.Context, text string) (string, bool) {
	titles, err := e.topStories(ctx)
	if err != nil {
		logging.WithField("tool", "news").Warn("News lookup failed: %v", err)
		return NewsUnavailable, true
	}
	if len(titles) == 0 {
		return NewsUnavailable, true
	}

	var b strings.Builder
	b.WriteString("🔥 Top Tech Headlines (Hacker News):")
	for i, title := range titles {
		fmt.Fprintf(&b, "\n%d. %s", i+1, title)
	}
	return b.String(), true
}

// topStories fetches the first stories concurrently, keeping feed order
func (e *Executor) topStories(ctx context.Context) ([]string, error) {
	body, err := e.get(ctx, e.cfg.NewsURL+"topstories.json")
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode story ids: %w", err)
	}
	if len(ids) > newsStories {
		ids = ids[:newsStories]
	}

	stories := make([]hnStory, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			raw, err := e.get(gctx, fmt.Sprintf("%sitem/%d.json", e.cfg.NewsURL, id))
			if err != nil {
				return err
			}
			return json.Unmarshal(raw, &stories[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(stories))
	for _, s := range stories {
		if s.Title != "" {
			titles = append(titles, s.Title)
		}
	}
	return titles, nil
}

func (e *Executor) joke(ctx context.Context, text string) (string, bool) {
	body, err := e.get(ctx, e.cfg.JokeURL)
	if err != nil {
		logging.WithField("tool", "joke").Warn("Joke lookup failed: %v", err)
		return FallbackJoke, true
	}

	var j struct {
		Setup     string `json:"setup"`
		Punchline string `json:"punchline"`
	}
	if err := json.Unmarshal(body, &j); err != nil || j.Setup == "" {
		return FallbackJoke, true
	}
	return fmt.Sprintf("😄 %s\n\n%s", j.Setup, j.Punchline), true
}

func (e *Executor) publicIP(ctx context.Context, text string) (string, bool) {
	body, err := e.get(ctx, e.cfg.IPURL)
	if err != nil {
		logging.WithField("tool", "ip").Warn("IP lookup failed: %v", err)
		return IPUnavailable, true
	}

	var d struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(body, &d); err != nil || d.IP == "" {
		return IPUnavailable, true
	}
	return fmt.Sprintf("🌐 Your public IP: %s", d.IP), true
}

// get performs a bounded GET and treats any non-200 as failure
func (e *Executor) get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8.0 sentience")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxToolBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sentience/sentience/internal/core"
)

// RouterConfig configures the provider router
type RouterConfig struct {
	// Providers in preference order; the first configured one is primary.
	Providers []Provider

	// Fallback behavior
	EnableFallback bool // Try later providers when the chosen one fails
}

// Router sends requests to the first usable provider, falling back to
// the others on failure. A stream only falls back before its first
// fragment: once opened it belongs to a single provider.
type Router struct {
	providers      []Provider
	enableFallback bool

	// Stats
	mu    sync.RWMutex
	stats RouterStats
}

// RouterStats tracks router usage
type RouterStats struct {
	Requests         map[string]int64 `json:"requests"`
	FallbackCount    int64            `json:"fallbackCount"`
	ErrorCount       int64            `json:"errorCount"`
	AverageLatencyMs int64            `json:"averageLatencyMs"`
	LastProvider     string           `json:"lastProvider,omitempty"`
	LastError        string           `json:"lastError,omitempty"`
}

// Response contains the response and metadata
type Response struct {
	Content     string
	Provider    string
	LatencyMs   int64
	WasFallback bool
}

// NewRouter creates a new router
func NewRouter(cfg RouterConfig) *Router {
	var providers []Provider
	for _, p := range cfg.Providers {
		if p != nil {
			providers = append(providers, p)
		}
	}
	return &Router{
		providers:      providers,
		enableFallback: cfg.EnableFallback,
		stats:          RouterStats{Requests: map[string]int64{}},
	}
}

// Complete runs a single-shot request
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	var content string

	used, fallback, err := r.attempt(ctx, func(p Provider) error {
		var err error
		content, err = p.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	r.recordSuccess(used, latency, fallback)

	return &Response{
		Content:     content,
		Provider:    used,
		LatencyMs:   latency,
		WasFallback: fallback,
	}, nil
}

// Stream opens a fragment stream and reports which provider serves it
func (r *Router) Stream(ctx context.Context, req Request) (Stream, string, error) {
	start := time.Now()
	var stream Stream

	used, fallback, err := r.attempt(ctx, func(p Provider) error {
		var err error
		stream, err = p.Stream(ctx, req)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	r.recordSuccess(used, time.Since(start).Milliseconds(), fallback)
	return stream, used, nil
}

// attempt calls fn with each candidate provider until one succeeds
func (r *Router) attempt(ctx context.Context, fn func(Provider) error) (string, bool, error) {
	candidates := r.candidates()
	if len(candidates) == 0 {
		return "", false, core.ErrLLMUnavailable
	}

	var errs []error
	for i, p := range candidates {
		err := fn(p)
		if err == nil {
			return p.Name(), i > 0, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		r.recordError(err)

		if !r.enableFallback || ctx.Err() != nil {
			break
		}
	}
	return "", false, errors.Join(errs...)
}

// candidates orders providers: the first configured one, then the rest
// when fallback is enabled
func (r *Router) candidates() []Provider {
	primary := -1
	for i, p := range r.providers {
		if p.IsConfigured() {
			primary = i
			break
		}
	}
	if primary < 0 {
		return nil
	}

	out := []Provider{r.providers[primary]}
	if r.enableFallback {
		for i, p := range r.providers {
			if i > primary {
				out = append(out, p)
			}
		}
	}
	return out
}

func (r *Router) recordSuccess(provider string, latencyMs int64, fallback bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Requests[provider]++
	r.stats.LastProvider = provider
	if fallback {
		r.stats.FallbackCount++
	}

	// Update average latency (simple moving average)
	var total int64
	for _, n := range r.stats.Requests {
		total += n
	}
	r.stats.AverageLatencyMs = (r.stats.AverageLatencyMs*(total-1) + latencyMs) / total
}

func (r *Router) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.ErrorCount++
	r.stats.LastError = err.Error()
}

// GetStats returns a copy of the router statistics
func (r *Router) GetStats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := r.stats
	out.Requests = make(map[string]int64, len(r.stats.Requests))
	for k, v := range r.stats.Requests {
		out.Requests[k] = v
	}
	return out
}

// HealthCheck reports whether each provider is usable
func (r *Router) HealthCheck() map[string]bool {
	health := make(map[string]bool, len(r.providers))
	for _, p := range r.providers {
		health[p.Name()] = p.IsConfigured()
	}
	return health
}

// Providers returns the provider names in preference order
func (r *Router) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

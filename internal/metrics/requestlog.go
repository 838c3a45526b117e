package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultLogSize       = 50
	defaultLatencyWindow = 100
)

// RequestRecord is one served request
type RequestRecord struct {
	Time      time.Time `json:"time"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	LatencyMs int64     `json:"latency"`
}

// RequestLog keeps the newest requests and a window of latencies
type RequestLog struct {
	mu        sync.RWMutex
	records   []RequestRecord // newest first
	latencies []int64         // oldest first
	total     int64
	logSize   int
	window    int
}

// NewRequestLog creates an empty request log
func NewRequestLog() *RequestLog {
	return &RequestLog{logSize: defaultLogSize, window: defaultLatencyWindow}
}

// Record stores one request
func (l *RequestLog) Record(rec RequestRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	l.records = append([]RequestRecord{rec}, l.records...)
	if len(l.records) > l.logSize {
		l.records = l.records[:l.logSize]
	}
	l.latencies = append(l.latencies, rec.LatencyMs)
	if len(l.latencies) > l.window {
		l.latencies = l.latencies[len(l.latencies)-l.window:]
	}
}

// Recent returns up to n records, newest first
func (l *RequestLog) Recent(n int) []RequestRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	return append([]RequestRecord(nil), l.records[:n]...)
}

// Latencies returns up to the n newest latencies, oldest first
func (l *RequestLog) Latencies(n int) []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.latencies) {
		n = len(l.latencies)
	}
	return append([]int64(nil), l.latencies[len(l.latencies)-n:]...)
}

// AverageLatency averages the n newest latencies; n <= 0 uses the window
func (l *RequestLog) AverageLatency(n int) int64 {
	lat := l.Latencies(n)
	if len(lat) == 0 {
		return 0
	}
	var sum int64
	for _, v := range lat {
		sum += v
	}
	return sum / int64(len(lat))
}

// Total returns how many requests were ever recorded
func (l *RequestLog) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Middleware records every request into the log and the Prometheus
// request instruments
func (l *RequestLog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		l.Record(RequestRecord{
			Time:      start,
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    status,
			LatencyMs: elapsed.Milliseconds(),
		})
	})
}

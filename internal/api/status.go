package api

import (
	"fmt"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/llm"
)

// Data APIs the tools call; they have no health probe of their own
var dataAPIs = []string{"Weather API", "Joke API", "IP API", "News API", "Web Search"}

// APIStatus is one entry of /status/network
type APIStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ConversationStat is one entry of /status/memory
type ConversationStat struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (s *Server) statusRoutes(r chi.Router) {
	r.Get("/core", s.handleCoreStatus)
	r.Get("/network", s.handleNetworkStatus)
	r.Get("/memory", s.handleMemoryStatus)
	r.Get("/analytics", s.handleAnalyticsStatus)
}

func (s *Server) handleCoreStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.analytics.Snapshot(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	files, _, err := s.knowledge.Stats(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	uptime := time.Since(s.startTime)
	health := s.providerHealth()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ONLINE",
		"version":       Version,
		"uptime":        formatUptime(uptime),
		"uptimeSeconds": int64(uptime.Seconds()),
		"model":         s.models.Fast + " / " + s.models.Deep,
		"memoryUsage":   memoryUsageMB(),
		"groqConnected": health[llm.ProviderGroq],
		"providers":     health,
		"messageCount":  snap.MessageCount,
		"fileCount":     files,
	})
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	health := s.providerHealth()
	var apis []APIStatus
	for _, name := range s.providerNames() {
		status := "OFFLINE"
		if health[name] {
			status = "ONLINE"
		} else if name == llm.ProviderGroq {
			status = "NO_KEY"
		}
		apis = append(apis, APIStatus{Name: providerLabel(name), Status: status})
	}
	for _, name := range dataAPIs {
		apis = append(apis, APIStatus{Name: name, Status: "ONLINE"})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"apis":          apis,
		"requestLog":    s.requestLog.Recent(20),
		"avgLatency":    s.requestLog.AverageLatency(10),
		"totalRequests": s.requestLog.Total(),
	})
}

func (s *Server) handleMemoryStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	files, chars, err := s.knowledge.Stats(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	list, err := s.conversations.List(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	legacy, err := s.legacy.Count(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	total := 0
	convs := make([]ConversationStat, len(list))
	for i, c := range list {
		total += c.MessageCount
		convs[i] = ConversationStat{ID: c.ID, Title: c.Title, MessageCount: c.MessageCount, UpdatedAt: c.UpdatedAt}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fileCount":          files,
		"totalChars":         chars,
		"conversationCount":  len(list),
		"totalMessages":      total,
		"legacyMessageCount": legacy,
		"memoryUsageMB":      memoryUsageMB(),
		"conversations":      convs,
	})
}

func (s *Server) handleAnalyticsStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.analytics.Snapshot(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	body := map[string]interface{}{
		"messageCount":    snap.MessageCount,
		"fileCount":       snap.FileCount,
		"toolUsage":       snap.ToolUsage,
		"uptimeSeconds":   int64(time.Since(s.startTime).Seconds()),
		"avgLatency":      s.requestLog.AverageLatency(0),
		"recentLatencies": s.requestLog.Latencies(20),
		"totalRequests":   s.requestLog.Total(),
	}
	if s.llm != nil {
		body["llm"] = s.llm.GetStats()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) providerNames() []string {
	if s.llm == nil {
		return nil
	}
	return s.llm.Providers()
}

func (s *Server) providerHealth() map[string]bool {
	if s.llm == nil {
		return map[string]bool{}
	}
	return s.llm.HealthCheck()
}

func providerLabel(name string) string {
	switch name {
	case llm.ProviderGroq:
		return "GROQ AI"
	case llm.ProviderOllama:
		return "Ollama (local)"
	}
	return name
}

// formatUptime renders "42s", "3m 5s" or "2h 14m"
func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
}

// memoryUsageMB is the live heap in megabytes, one decimal
func memoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return math.Round(float64(m.HeapAlloc)/(1<<20)*10) / 10
}

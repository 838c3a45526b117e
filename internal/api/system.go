package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/tools"
)

const logsLimit = 50

// Component is one entry of /system/processes
type Component struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) systemRoutes(r chi.Router) {
	r.Get("/overview", s.handleOverview)
	r.Get("/logs", s.handleLogs)
	r.Get("/tools", s.handleTools)
	r.Get("/processes", s.handleProcesses)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := s.analytics.Snapshot(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	files, _, err := s.knowledge.Stats(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	vaultItems, err := s.vault.Count(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	mem, err := s.personal.Get(ctx)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	taskCount, active := 0, 0
	if s.tasks != nil {
		list, err := s.tasks.List(ctx)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		taskCount = len(list)
		for _, t := range list {
			if t.Status == core.TaskRunning {
				active++
			}
		}
	}

	uptime := time.Since(s.startTime)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":            int64(uptime.Seconds()),
		"uptimeStr":         formatUptime(uptime),
		"memoryUsageMB":     memoryUsageMB(),
		"goroutines":        runtime.NumGoroutine(),
		"messageCount":      snap.MessageCount,
		"fileCount":         files,
		"taskCount":         taskCount,
		"activeTasks":       active,
		"vaultItems":        vaultItems,
		"hasPersonalMemory": len(mem.Facts) > 0 || mem.Name != "",
		"groqConnected":     s.providerHealth()[llm.ProviderGroq],
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.journal.Recent(logsLimit)
	logs := make([]string, len(entries))
	for i, e := range entries {
		logs[i] = e.String()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"tools": tools.Tools()})
}

// handleProcesses reports the live state of each long-running component
func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	comps := []Component{
		{Name: "http", Status: "RUNNING", Detail: formatUptime(time.Since(s.startTime))},
		{Name: "websocket", Status: "RUNNING", Detail: pluralize(s.wsHub.Count(), "client")},
	}

	health := s.providerHealth()
	for _, name := range s.providerNames() {
		status := "OFFLINE"
		if health[name] {
			status = "ONLINE"
		}
		comps = append(comps, Component{Name: "llm:" + name, Status: status})
	}

	if s.tasks != nil {
		comps = append(comps, Component{
			Name:   "task-engine",
			Status: "RUNNING",
			Detail: pluralize(s.tasks.Scheduled(), "scheduled task"),
		})
	} else {
		comps = append(comps, Component{Name: "task-engine", Status: "DISABLED"})
	}

	if s.simulations != nil {
		comps = append(comps, Component{
			Name:   "simulation",
			Status: "RUNNING",
			Detail: pluralize(s.simulations.Count(), "session"),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"processes": comps})
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

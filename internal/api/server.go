// Package api provides the HTTP API server for SENTIENCE.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentience/sentience/internal/assembler"
	"github.com/sentience/sentience/internal/core"
	"github.com/sentience/sentience/internal/journal"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/logging"
	"github.com/sentience/sentience/internal/metrics"
	"github.com/sentience/sentience/internal/pipeline"
	"github.com/sentience/sentience/internal/simulation"
	"github.com/sentience/sentience/internal/storage"
	"github.com/sentience/sentience/internal/tasks"
)

// Version is reported by the status endpoints
const Version = "3.0.0"

const (
	requestTimeout = 30 * time.Second
	askTimeout     = 150 * time.Second
	maxJSONBody    = 1 << 20
)

// Config wires the server to its collaborators. Tasks may be nil when
// background tasks are disabled.
type Config struct {
	Host string
	Port int

	Pipeline      *pipeline.Pipeline
	Router        *llm.Router
	Conversations *storage.ConversationStore
	Legacy        *storage.LegacyStore
	Personal      *storage.PersonalStore
	Knowledge     *storage.KnowledgeStore
	Analytics     *storage.AnalyticsStore
	Vault         *storage.VaultStore
	Tasks         *tasks.Engine
	Simulations   *simulation.Manager
	Journal       *journal.Journal
	RequestLog    *metrics.RequestLog
	Models        assembler.Models
	StartTime     time.Time
	Logger        *logging.Logger
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	log        *logging.Logger

	pipeline      *pipeline.Pipeline
	llm           *llm.Router
	conversations *storage.ConversationStore
	legacy        *storage.LegacyStore
	personal      *storage.PersonalStore
	knowledge     *storage.KnowledgeStore
	analytics     *storage.AnalyticsStore
	vault         *storage.VaultStore
	tasks         *tasks.Engine
	simulations   *simulation.Manager
	journal       *journal.Journal
	requestLog    *metrics.RequestLog
	models        assembler.Models
	startTime     time.Time

	wsHub *WebSocketHub
}

// New creates a new API server
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.New(journal.DefaultCapacity)
	}
	if cfg.RequestLog == nil {
		cfg.RequestLog = metrics.NewRequestLog()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}

	s := &Server{
		router:        chi.NewRouter(),
		log:           cfg.Logger.WithField("component", "api"),
		pipeline:      cfg.Pipeline,
		llm:           cfg.Router,
		conversations: cfg.Conversations,
		legacy:        cfg.Legacy,
		personal:      cfg.Personal,
		knowledge:     cfg.Knowledge,
		analytics:     cfg.Analytics,
		vault:         cfg.Vault,
		tasks:         cfg.Tasks,
		simulations:   cfg.Simulations,
		journal:       cfg.Journal,
		requestLog:    cfg.RequestLog,
		models:        cfg.Models,
		startTime:     cfg.StartTime,
	}
	s.wsHub = NewWebSocketHub(cfg.Journal, s.log)

	s.setupRouter()

	// No WriteTimeout: /api/ai/stream stays open for a whole generation.
	// Other routes are bounded by middleware.Timeout.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog.Middleware)

	// The original frontend is served from any origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.wsHub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/ai", func(r chi.Router) {
			r.Post("/stream", s.handleStream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(askTimeout))
				r.Post("/ask", s.handleAsk)
				r.Post("/ask-with-file", s.handleAskWithFile)
				r.Get("/mode", s.handleGetMode)
				r.Post("/mode", s.handleSetMode)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Route("/conversations", s.conversationRoutes)
			r.Route("/memory", s.memoryRoutes)
			r.Route("/files", s.fileRoutes)
			r.Route("/vault", s.vaultRoutes)
			r.Route("/status", s.statusRoutes)
			r.Route("/system", s.systemRoutes)
		})

		// LLM-backed groups get the longer deadline
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(askTimeout))

			r.Route("/simulation", s.simulationRoutes)
			if s.tasks != nil {
				r.Route("/tasks", s.taskRoutes)
			}
		})
	})
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	go s.wsHub.Run()

	s.log.Info("API server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server and disconnects WebSocket clients
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wsHub.Close()
	return err
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "SENTIENCE Backend online",
		"version": Version,
		"ts":      time.Now().UnixMilli(),
	})
}

// --- Helpers ---

// respondJSON writes data as a JSON body with the given status
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes {"error": message}
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSuccess writes {"success": true} plus optional extra fields
func respondSuccess(w http.ResponseWriter, extra map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	respondJSON(w, http.StatusOK, body)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps a domain error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrEmptyPrompt),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrMissingRequired),
		errors.Is(err, core.ErrUnknownMode),
		errors.Is(err, core.ErrUnknownScenario),
		errors.Is(err, core.ErrFactNotFound):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConversationNotFound),
		errors.Is(err, core.ErrTaskNotFound),
		errors.Is(err, core.ErrVaultItemNotFound),
		errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrLLMUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondErr writes the mapped status. Server-side failures are logged
// and answered with the generic status text.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		respondError(w, status, http.StatusText(status))
		return
	}
	respondError(w, status, err.Error())
}

// logEvent appends to the system journal
func (s *Server) logEvent(format string, args ...interface{}) {
	s.journal.Appendf(format, args...)
}

// SENTIENCE Daemon - the assistant backend service
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentience/sentience/internal/api"
	"github.com/sentience/sentience/internal/assembler"
	"github.com/sentience/sentience/internal/config"
	"github.com/sentience/sentience/internal/journal"
	"github.com/sentience/sentience/internal/llm"
	"github.com/sentience/sentience/internal/logging"
	"github.com/sentience/sentience/internal/metrics"
	"github.com/sentience/sentience/internal/persona"
	"github.com/sentience/sentience/internal/pipeline"
	"github.com/sentience/sentience/internal/search"
	"github.com/sentience/sentience/internal/simulation"
	"github.com/sentience/sentience/internal/storage"
	"github.com/sentience/sentience/internal/tasks"
	"github.com/sentience/sentience/internal/tools"
)

var (
	configPath string
	dataDir    string
	port       int
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentience",
		Short: "SENTIENCE Daemon - personal assistant backend",
		RunE:  runDaemon,
	}

	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".sentience", "config.yaml")

	rootCmd.Flags().StringVar(&configPath, "config", defaultConfig, "Config file (JSON or YAML)")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	level := logging.ParseLevel(cfg.Features.LogLevel)
	if debug || cfg.Features.DebugMode {
		level = logging.DEBUG
	}
	logging.SetLevel(level)
	log := logging.Default()

	fmt.Println("🚀 Starting SENTIENCE...")
	startTime := time.Now()

	// Open database
	db, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "sentience.db")})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	conversations := storage.NewConversationStore(db)
	legacy := storage.NewLegacyStore(db, cfg.Context.HistoryTurns)
	personal := storage.NewPersonalStore(db)
	knowledge := storage.NewKnowledgeStore(db, cfg.Context.MaxFiles, cfg.Context.FileCharBudget)
	analytics := storage.NewAnalyticsStore(db)
	history := storage.NewHistory(conversations, legacy)

	if err := analytics.MarkStart(ctx, startTime); err != nil {
		log.WithError(err).Warn("Failed to record start time")
	}

	events := journal.New(journal.DefaultCapacity)
	events.Append("SENTIENCE kernel initialized")

	// LLM providers: Groq first, local Ollama as fallback
	groq := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.FastModel,
		Timeout: cfg.LLM.Timeout(),
	})
	ollama := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL: cfg.Ollama.URL,
		Model:   cfg.Ollama.Model,
		Timeout: cfg.LLM.Timeout(),
	})
	router := llm.NewRouter(llm.RouterConfig{
		Providers:      []llm.Provider{groq, ollama},
		EnableFallback: cfg.Features.EnableFallback,
	})
	if groq.IsConfigured() {
		fmt.Println("✅ Groq API configured")
		events.Append("Groq AI client connected")
	} else {
		fmt.Println("⚠️  GROQ_API_KEY not set - requests go to Ollama only")
	}
	events.Append("Neural engine online")

	models := assembler.Models{Fast: cfg.LLM.FastModel, Deep: cfg.LLM.DeepModel}
	httpClient := &http.Client{Timeout: time.Duration(cfg.Tools.TimeoutSeconds) * time.Second}

	asm := assembler.New(assembler.Config{
		History:   history,
		Personal:  personal,
		Knowledge: knowledge,
		Search: search.NewClient(search.Config{
			DuckDuckGoURL: cfg.Search.DuckDuckGoURL,
			WikipediaURL:  cfg.Search.WikipediaURL,
			HTMLURL:       cfg.Search.HTMLURL,
			Timeout:       cfg.Search.Timeout(),
		}),
		HistoryTurns:  cfg.Context.HistoryTurns,
		SearchTimeout: cfg.Search.Timeout(),
		Models:        models,
		Logger:        log,
	})
	events.Append("Memory subsystem ready")

	executor := tools.NewExecutor(tools.Config{
		WeatherURL: cfg.Tools.WeatherURL,
		NewsURL:    cfg.Tools.NewsURL,
		JokeURL:    cfg.Tools.JokeURL,
		IPURL:      cfg.Tools.IPURL,
		Timeout:    time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
		HTTPClient: httpClient,
		Recorder:   analytics,
	})
	events.Append("File analysis service armed")

	p := pipeline.New(pipeline.Config{
		Modes:     persona.NewRegistry(),
		Tools:     executor,
		Assembler: asm,
		LLM:       router,
		History:   history,
		Counter:   analytics,
		Journal:   events,
		Logger:    log,
	})

	// Background tasks
	var engine *tasks.Engine
	if cfg.Features.EnableTasks {
		engine = tasks.NewEngine(tasks.Config{
			Store:   storage.NewTaskStore(db),
			LLM:     router,
			Model:   models.Fast,
			Journal: events,
			Logger:  log,
		})
		if err := engine.Start(ctx); err != nil {
			fmt.Printf("⚠️  Failed to start task engine: %v\n", err)
			engine = nil
		} else {
			fmt.Println("⏱️  Task engine started")
		}
	}

	server := api.New(api.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		Pipeline:      p,
		Router:        router,
		Conversations: conversations,
		Legacy:        legacy,
		Personal:      personal,
		Knowledge:     knowledge,
		Analytics:     analytics,
		Vault:         storage.NewVaultStore(db),
		Tasks:         engine,
		Simulations:   simulation.NewManager(simulation.Config{LLM: router, Model: models.Deep}),
		Journal:       events,
		RequestLog:    metrics.NewRequestLog(),
		Models:        models,
		StartTime:     startTime,
		Logger:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Printf("🌐 SENTIENCE listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)

	// Handle shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		fmt.Println("\n🛑 Shutting down...")
	case runErr = <-errCh:
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if engine != nil {
		engine.Stop()
	}
	return runErr
}

// Package config handles SENTIENCE configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Server
	Server ServerConfig `json:"server" yaml:"server"`

	// Services
	LLM    LLMConfig    `json:"llm" yaml:"llm"`
	Ollama OllamaConfig `json:"ollama" yaml:"ollama"`
	Search SearchConfig `json:"search" yaml:"search"`
	Tools  ToolsConfig  `json:"tools" yaml:"tools"`

	// Prompt assembly
	Context ContextConfig `json:"context" yaml:"context"`

	// Features
	Features FeatureConfig `json:"features" yaml:"features"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port" yaml:"port"`
	Host string `json:"host" yaml:"host"`
}

// LLMConfig for the hosted OpenAI-compatible provider
type LLMConfig struct {
	APIKey         string `json:"api_key" yaml:"api_key"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	FastModel      string `json:"fast_model" yaml:"fast_model"`
	DeepModel      string `json:"deep_model" yaml:"deep_model"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the provider request timeout
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OllamaConfig for local LLM fallback
type OllamaConfig struct {
	URL   string `json:"url" yaml:"url"`
	Model string `json:"model" yaml:"model"`
}

// SearchConfig for the web search collaborator
type SearchConfig struct {
	TimeoutMs     int    `json:"timeout_ms" yaml:"timeout_ms"`
	DuckDuckGoURL string `json:"duckduckgo_url" yaml:"duckduckgo_url"`
	WikipediaURL  string `json:"wikipedia_url" yaml:"wikipedia_url"`
	HTMLURL       string `json:"html_url" yaml:"html_url"`
}

// Timeout returns the per-search deadline
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ToolsConfig for the deterministic data-API tools
type ToolsConfig struct {
	WeatherURL     string `json:"weather_url" yaml:"weather_url"`
	NewsURL        string `json:"news_url" yaml:"news_url"`
	JokeURL        string `json:"joke_url" yaml:"joke_url"`
	IPURL          string `json:"ip_url" yaml:"ip_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ContextConfig bounds what goes into a system prompt
type ContextConfig struct {
	HistoryTurns   int `json:"history_turns" yaml:"history_turns"`
	MaxFiles       int `json:"max_files" yaml:"max_files"`
	FileCharBudget int `json:"file_char_budget" yaml:"file_char_budget"`
}

// FeatureConfig for feature flags
type FeatureConfig struct {
	EnableTasks    bool   `json:"enable_tasks" yaml:"enable_tasks"`
	EnableFallback bool   `json:"enable_fallback" yaml:"enable_fallback"`
	DebugMode      bool   `json:"debug_mode" yaml:"debug_mode"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".sentience"),
		Server: ServerConfig{
			Port: 5000,
			Host: "localhost",
		},
		LLM: LLMConfig{
			APIKey:         os.Getenv("GROQ_API_KEY"),
			BaseURL:        "https://api.groq.com/openai/v1",
			FastModel:      "llama-3.1-8b-instant",
			DeepModel:      "llama-3.3-70b-versatile",
			TimeoutSeconds: 120,
		},
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llama3.2",
		},
		Search: SearchConfig{
			TimeoutMs:     5000,
			DuckDuckGoURL: "https://api.duckduckgo.com/",
			WikipediaURL:  "https://en.wikipedia.org/api/rest_v1/page/summary/",
			HTMLURL:       "https://html.duckduckgo.com/html/",
		},
		Tools: ToolsConfig{
			WeatherURL:     "https://wttr.in/",
			NewsURL:        "https://hacker-news.firebaseio.com/v0/",
			JokeURL:        "https://official-joke-api.appspot.com/random_joke",
			IPURL:          "https://api.ipify.org?format=json",
			TimeoutSeconds: 5,
		},
		Context: ContextConfig{
			HistoryTurns:   20,
			MaxFiles:       20,
			FileCharBudget: 3000,
		},
		Features: FeatureConfig{
			EnableTasks:    true,
			EnableFallback: true,
			DebugMode:      false,
			LogLevel:       "info",
		},
	}
}

// Load loads config from file, falling back to defaults.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data = nil // Use defaults
	}

	if len(data) > 0 {
		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets the environment override file values
func (c *Config) applyEnv() {
	if apiKey := os.Getenv("GROQ_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Ollama.URL = host
	}
	if port := os.Getenv("SENTIENCE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Don't save API key to file
	safeCfg := *c
	safeCfg.LLM.APIKey = ""

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(safeCfg)
	} else {
		data, err = json.MarshalIndent(safeCfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sentience/sentience/internal/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
	if filepath.Base(cfg.DataDir) != ".sentience" {
		t.Errorf("DataDir should end with .sentience, got %q", filepath.Base(cfg.DataDir))
	}
	testutil.AssertEqual(t, "Server.Port", cfg.Server.Port, 5000)
	testutil.AssertEqual(t, "LLM.FastModel", cfg.LLM.FastModel, "llama-3.1-8b-instant")
	testutil.AssertEqual(t, "LLM.DeepModel", cfg.LLM.DeepModel, "llama-3.3-70b-versatile")
	if cfg.Context.HistoryTurns != 20 || cfg.Context.MaxFiles != 20 || cfg.Context.FileCharBudget != 3000 {
		t.Errorf("Context = %+v", cfg.Context)
	}
	if cfg.Search.Timeout().Seconds() != 5 {
		t.Errorf("Search.Timeout() = %v, want 5s", cfg.Search.Timeout())
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Server.Port", cfg.Server.Port, Default().Server.Port)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"server": {"port": 9090, "host": "0.0.0.0"}, "llm": {"fast_model": "tiny"}}`
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Server.Port", cfg.Server.Port, 9090)
	testutil.AssertEqual(t, "Server.Host", cfg.Server.Host, "0.0.0.0")
	testutil.AssertEqual(t, "LLM.FastModel", cfg.LLM.FastModel, "tiny")
	// unset fields keep their defaults
	testutil.AssertEqual(t, "LLM.DeepModel", cfg.LLM.DeepModel, "llama-3.3-70b-versatile")
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "server:\n  port: 7000\ncontext:\n  history_turns: 10\nfeatures:\n  enable_tasks: false\n"
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "Server.Port", cfg.Server.Port, 7000)
	testutil.AssertEqual(t, "Context.HistoryTurns", cfg.Context.HistoryTurns, 10)
	if cfg.Features.EnableTasks {
		t.Error("Features.EnableTasks should be false")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	testutil.AssertNoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on malformed JSON")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	testutil.SetEnv(t, "GROQ_API_KEY", "gsk-env")
	testutil.SetEnv(t, "SENTIENCE_PORT", "6123")
	testutil.SetEnv(t, "OLLAMA_HOST", "http://ollama:11434")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "LLM.APIKey", cfg.LLM.APIKey, "gsk-env")
	testutil.AssertEqual(t, "Server.Port", cfg.Server.Port, 6123)
	testutil.AssertEqual(t, "Ollama.URL", cfg.Ollama.URL, "http://ollama:11434")
}

func TestSave_OmitsAPIKey(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.LLM.APIKey = "secret"

	jsonPath := filepath.Join(dir, "config.json")
	testutil.AssertNoError(t, cfg.Save(jsonPath))
	data, err := os.ReadFile(jsonPath)
	testutil.AssertNoError(t, err)
	var saved Config
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
	if saved.LLM.APIKey != "" {
		t.Error("API key should not be written to disk")
	}
	if cfg.LLM.APIKey != "secret" {
		t.Error("Save should not mutate the receiver")
	}

	yamlPath := filepath.Join(dir, "config.yml")
	testutil.AssertNoError(t, cfg.Save(yamlPath))
	data, _ = os.ReadFile(yamlPath)
	if strings.Contains(string(data), "secret") {
		t.Error("API key should not be written to YAML either")
	}
	if !strings.Contains(string(data), "fast_model:") {
		t.Errorf("YAML output missing keys: %s", data)
	}
}

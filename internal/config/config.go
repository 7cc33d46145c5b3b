package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TierConfig configures one processing tier.
type TierConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// KnowledgeConfig configures the embedding document store.
type KnowledgeConfig struct {
	DBPath        string `yaml:"db_path"`
	Collection    string `yaml:"collection"`
	EmbedderURL   string `yaml:"embedder_url"`
	EmbedderModel string `yaml:"embedder_model"`
	EmbedderDims  int    `yaml:"embedder_dims"`
	CacheSize     int    `yaml:"cache_size"`
}

// PromptConfig configures prompt assembly.
type PromptConfig struct {
	MaxPromptTokens  int  `yaml:"max_prompt_tokens"`
	IncludeKnowledge bool `yaml:"include_knowledge_context"`
	IncludeHistory   bool `yaml:"include_conversation_history"`
	HistoryWindow    int  `yaml:"history_window"`
}

type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    slog.Level
	RedisURL    string `yaml:"redis_url"`
	ProfileDir  string `yaml:"profile_dir"`

	Local     TierConfig      `yaml:"local"`
	Hosted    TierConfig      `yaml:"hosted"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Prompt    PromptConfig    `yaml:"prompt"`
}

// Load builds the configuration from an optional YAML file (CONFIG_PATH)
// with environment variable overrides on top.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        "8080",
		Environment: "development",
		RedisURL:    "localhost:6379",
		ProfileDir:  "./data/profiles",
		Local: TierConfig{
			Enabled: true,
			BaseURL: "http://localhost:11434",
			Model:   "deepseek-r1:7b",
		},
		Hosted: TierConfig{
			Enabled: false,
			Model:   "claude-3-5-haiku-20241022",
		},
		Knowledge: KnowledgeConfig{
			DBPath:        "./data/knowledge.db",
			Collection:    "npc_knowledge",
			EmbedderURL:   "http://localhost:11434",
			EmbedderModel: "nomic-embed-text",
			EmbedderDims:  768,
			CacheSize:     1000,
		},
		Prompt: PromptConfig{
			MaxPromptTokens:  800,
			IncludeKnowledge: true,
			IncludeHistory:   true,
			HistoryWindow:    10,
		},
	}

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.LogLevel = parseLogLevel(getEnv("LOG_LEVEL", "info"))

	if cfg.Prompt.MaxPromptTokens <= 0 {
		return nil, fmt.Errorf("max_prompt_tokens must be positive, got %d", cfg.Prompt.MaxPromptTokens)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.ProfileDir = getEnv("PROFILE_DIR", cfg.ProfileDir)

	cfg.Local.Enabled = getEnvBool("LOCAL_ENABLED", cfg.Local.Enabled)
	cfg.Local.BaseURL = getEnv("OLLAMA_URL", cfg.Local.BaseURL)
	cfg.Local.Model = getEnv("LOCAL_MODEL", cfg.Local.Model)

	cfg.Hosted.Enabled = getEnvBool("HOSTED_ENABLED", cfg.Hosted.Enabled)
	cfg.Hosted.Model = getEnv("HOSTED_MODEL", cfg.Hosted.Model)
	cfg.Hosted.APIKey = getEnv("ANTHROPIC_API_KEY", cfg.Hosted.APIKey)

	cfg.Knowledge.DBPath = getEnv("KNOWLEDGE_DB_PATH", cfg.Knowledge.DBPath)
	cfg.Knowledge.EmbedderURL = getEnv("EMBEDDER_URL", cfg.Knowledge.EmbedderURL)
	cfg.Knowledge.EmbedderModel = getEnv("EMBEDDER_MODEL", cfg.Knowledge.EmbedderModel)
	cfg.Knowledge.EmbedderDims = getEnvInt("EMBEDDER_DIMS", cfg.Knowledge.EmbedderDims)
	cfg.Knowledge.CacheSize = getEnvInt("KNOWLEDGE_CACHE_SIZE", cfg.Knowledge.CacheSize)

	cfg.Prompt.MaxPromptTokens = getEnvInt("MAX_PROMPT_TOKENS", cfg.Prompt.MaxPromptTokens)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// LLM providers
const (
	ProviderGoogleAI  = "googleai"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Embedding providers
const (
	EmbeddingOpenAI = "openai"
	EmbeddingOllama = "ollama"
)

type Config struct {
	// Service configuration
	ServiceName string
	Host        string
	Port        int
	CORSOrigins []string
	LogLevel    slog.Level

	// Data locations
	DataRoot        string
	IndexPath       string
	IndexCollection string
	SessionsFile    string
	StoreBackend    string
	RedisURL        string
	RedisKey        string

	// Embedding configuration
	EmbeddingProvider string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingModel    string

	// Generation configuration
	LLMProvider     string
	LLMModel        string
	GoogleAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Chat settings
	MaxContextMessages    int
	PromptContextMessages int
	RetrievalK            int
	PassageMaxChars       int
	RestoreContext        bool

	// NATS configuration, disabled when NatsURL is empty
	NatsURL            string
	NatsRequestSubject string
	NatsTimeout        time.Duration
}

// NewViper returns a viper instance carrying every default and reading
// overrides from the environment. Keys are the lower-cased env names.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("service_name", "skillbuddy-chat")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("cors_origins", "http://localhost:3000")
	v.SetDefault("log_level", "info")

	v.SetDefault("data_root", ".")
	v.SetDefault("intelligent_collection", "ksa_project")
	v.SetDefault("store_backend", BackendFile)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("redis_key", "skillbuddy:sessions")

	v.SetDefault("embedding_provider", EmbeddingOpenAI)
	v.SetDefault("embedding_base_url", "http://localhost:8080/v1")
	v.SetDefault("embedding_model", "sentence-transformers/paraphrase-multilingual-mpnet-base-v2")

	v.SetDefault("llm_provider", ProviderGoogleAI)
	v.SetDefault("llm_model", "gemini-2.5-flash")

	v.SetDefault("max_context_messages", 10)
	v.SetDefault("prompt_context_messages", 5)
	v.SetDefault("retrieval_k", 3)
	v.SetDefault("passage_max_chars", 500)
	v.SetDefault("restore_context", false)

	v.SetDefault("nats_request_subject", "chat.turn")
	v.SetDefault("nats_timeout", 30*time.Second)

	v.AutomaticEnv()
	_ = v.BindEnv("google_api_key", "GOOGLE_API_KEY", "GEMINI_API_KEY")

	return v
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	dataRoot := resolveDataRoot(v)

	cfg := &Config{
		ServiceName: v.GetString("service_name"),
		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		CORSOrigins: splitList(v.GetString("cors_origins")),

		DataRoot:        dataRoot,
		IndexPath:       stringOr(v, "intelligent_db_path", filepath.Join(dataRoot, "chroma")),
		IndexCollection: v.GetString("intelligent_collection"),
		SessionsFile:    stringOr(v, "chat_sessions_file", filepath.Join(dataRoot, "smart_chat_sessions.json")),
		StoreBackend:    strings.ToLower(v.GetString("store_backend")),
		RedisURL:        v.GetString("redis_url"),
		RedisKey:        v.GetString("redis_key"),

		EmbeddingProvider: strings.ToLower(v.GetString("embedding_provider")),
		EmbeddingBaseURL:  v.GetString("embedding_base_url"),
		EmbeddingAPIKey:   v.GetString("embedding_api_key"),
		EmbeddingModel:    v.GetString("embedding_model"),

		LLMProvider:     strings.ToLower(v.GetString("llm_provider")),
		LLMModel:        v.GetString("llm_model"),
		GoogleAPIKey:    v.GetString("google_api_key"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),

		MaxContextMessages:    v.GetInt("max_context_messages"),
		PromptContextMessages: v.GetInt("prompt_context_messages"),
		RetrievalK:            v.GetInt("retrieval_k"),
		PassageMaxChars:       v.GetInt("passage_max_chars"),
		RestoreContext:        v.GetBool("restore_context"),

		NatsURL:            v.GetString("nats_url"),
		NatsRequestSubject: v.GetString("nats_request_subject"),
		NatsTimeout:        v.GetDuration("nats_timeout"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that makes startup impossible.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGoogleAI:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY (or GEMINI_API_KEY) is required when LLM_PROVIDER=%s", c.LLMProvider)
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=%s", c.LLMProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=%s", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.EmbeddingProvider {
	case EmbeddingOpenAI, EmbeddingOllama:
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	switch c.StoreBackend {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.MaxContextMessages <= 0 {
		return fmt.Errorf("MAX_CONTEXT_MESSAGES must be positive, got %d", c.MaxContextMessages)
	}
	if c.PromptContextMessages <= 0 {
		return fmt.Errorf("PROMPT_CONTEXT_MESSAGES must be positive, got %d", c.PromptContextMessages)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be positive, got %d", c.RetrievalK)
	}
	if c.PassageMaxChars <= 0 {
		return fmt.Errorf("PASSAGE_MAX_CHARS must be positive, got %d", c.PassageMaxChars)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// resolveDataRoot keeps data inside a mounted Railway volume when present,
// then falls back to DATA_ROOT.
func resolveDataRoot(v *viper.Viper) string {
	if mount := v.GetString("railway_volume_mount_path"); mount != "" {
		return filepath.Join(mount, "data")
	}
	return v.GetString("data_root")
}

func stringOr(v *viper.Viper, key, defaultValue string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

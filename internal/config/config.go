// Package config provides configuration loading for copyvara.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables. Defaults are applied before validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Storage drivers.
const (
	StorageSQLite    = "sqlite"
	StoragePostgREST = "postgrest"
	StorageMemory    = "memory"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Evidence modes for the ask flow.
const (
	EvidenceRanked = "ranked"
	EvidenceRecent = "recent"
)

// Config holds the complete copyvara configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	LLM           LLMConfig           `koanf:"llm"`
	Storage       StorageConfig       `koanf:"storage"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Ask           AskConfig           `koanf:"ask"`
	Workspace     WorkspaceConfig     `koanf:"workspace"`
	Inbox         InboxConfig         `koanf:"inbox"`
	Events        EventsConfig        `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

// LLMConfig configures the text-generation service.
type LLMConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      Secret        `koanf:"api_key"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
	MaxRetries  int           `koanf:"max_retries"`
	Temperature float64       `koanf:"temperature"`
}

// StorageConfig selects and configures document/history persistence.
type StorageConfig struct {
	Driver       string        `koanf:"driver"`
	SQLiteDir    string        `koanf:"sqlite_dir"`
	PostgRESTURL string        `koanf:"postgrest_url"`
	PostgRESTKey Secret        `koanf:"postgrest_key"`
	Timeout      time.Duration `koanf:"timeout"`
}

// RetrievalConfig configures ranking.
type RetrievalConfig struct {
	Limit int `koanf:"limit"`
}

// AskConfig configures the question/answer flow.
type AskConfig struct {
	EvidenceMode    string `koanf:"evidence_mode"`
	RecentLimit     int    `koanf:"recent_limit"`
	MinAnswerLength int    `koanf:"min_answer_length"`
}

// WorkspaceConfig configures load limits and history caps.
type WorkspaceConfig struct {
	DocumentLoadLimit    int `koanf:"document_load_limit"`
	HistoryLoadLimit     int `koanf:"history_load_limit"`
	QuestionHistoryLimit int `koanf:"question_history_limit"`
	// SecretScan adds the gitleaks rule set to credential scrubbing.
	SecretScan bool `koanf:"secret_scan"`
	// SecretsFile is a TOML file of extra scrubbing rules and allow list
	// patterns.
	SecretsFile string `koanf:"secrets_file"`
}

// InboxConfig configures the watched capture directory.
type InboxConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// EventsConfig configures publishing workspace events to NATS. With
// Embedded set the daemon runs its own NATS server on EmbeddedPort and URL
// is ignored.
type EventsConfig struct {
	Enabled      bool   `koanf:"enabled"`
	URL          string `koanf:"url"`
	Embedded     bool   `koanf:"embedded"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm max_retries cannot be negative")
	}

	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.SQLiteDir == "" {
			return errors.New("storage sqlite_dir required for sqlite driver")
		}
	case StoragePostgREST:
		if _, err := NormalizePostgRESTURL(c.Storage.PostgRESTURL); err != nil {
			return err
		}
		if !c.Storage.PostgRESTKey.IsSet() {
			return errors.New("storage postgrest_key required for postgrest driver")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}

	switch c.Ask.EvidenceMode {
	case EvidenceRanked, EvidenceRecent:
	default:
		return fmt.Errorf("unsupported ask evidence_mode: %q", c.Ask.EvidenceMode)
	}

	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		return errors.New("inbox dir required when inbox is enabled")
	}
	if c.Events.Enabled && !c.Events.Embedded && c.Events.URL == "" {
		return errors.New("events url required unless the embedded server is used")
	}
	if c.Events.EmbeddedPort < -1 || c.Events.EmbeddedPort > 65535 {
		return fmt.Errorf("invalid events embedded_port: %d", c.Events.EmbeddedPort)
	}
	return nil
}

// NormalizePostgRESTURL trims whitespace and trailing slashes, repairs a
// doubled scheme ("https://https://host") and requires https.
func NormalizePostgRESTURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("storage postgrest_url required for postgrest driver")
	}
	for _, doubled := range []string{"https://https://", "https://http://"} {
		if strings.HasPrefix(s, doubled) {
			s = "https://" + strings.TrimPrefix(s, doubled)
		}
	}
	s = strings.TrimRight(s, "/")

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid postgrest_url: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("postgrest_url must be an https URL: %q", raw)
	}
	return s, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9292
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "copyvara"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case ProviderAnthropic:
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		default:
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if !cfg.LLM.APIKey.IsSet() {
		switch cfg.LLM.Provider {
		case ProviderAnthropic:
			cfg.LLM.APIKey = Secret(os.Getenv("ANTHROPIC_API_KEY"))
		default:
			cfg.LLM.APIKey = Secret(os.Getenv("OPENAI_API_KEY"))
		}
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.RateLimit == 0 {
		cfg.LLM.RateLimit = 2
	}

	if cfg.Storage.PostgRESTURL == "" {
		cfg.Storage.PostgRESTURL = os.Getenv("VITE_SUPABASE_URL")
	}
	if !cfg.Storage.PostgRESTKey.IsSet() {
		cfg.Storage.PostgRESTKey = Secret(os.Getenv("VITE_SUPABASE_ANON_KEY"))
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageSQLite
	}
	if cfg.Storage.SQLiteDir == "" {
		cfg.Storage.SQLiteDir = defaultDataDir()
	}
	if cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = 15 * time.Second
	}

	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = 8
	}

	if cfg.Ask.EvidenceMode == "" {
		cfg.Ask.EvidenceMode = EvidenceRanked
	}
	if cfg.Ask.RecentLimit == 0 {
		cfg.Ask.RecentLimit = 20
	}
	if cfg.Ask.MinAnswerLength == 0 {
		cfg.Ask.MinAnswerLength = 500
	}

	if cfg.Workspace.DocumentLoadLimit == 0 {
		cfg.Workspace.DocumentLoadLimit = 300
	}
	if cfg.Workspace.HistoryLoadLimit == 0 {
		cfg.Workspace.HistoryLoadLimit = 50
	}
	if cfg.Workspace.QuestionHistoryLimit == 0 {
		cfg.Workspace.QuestionHistoryLimit = 30
	}

	if cfg.Events.URL == "" {
		cfg.Events.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Events.EmbeddedHost == "" {
		cfg.Events.EmbeddedHost = "127.0.0.1"
	}
	if cfg.Events.EmbeddedPort == 0 {
		cfg.Events.EmbeddedPort = 4222
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".copyvara"
	}
	return home + "/.local/share/copyvara"
}

// Package config loads application configuration with multi-source
// priority: environment variables override the config file
// (~/.assistant/config.yaml), which overrides built-in defaults.
//
// Sensitive values (the database password, the API key) are never
// logged; Config masks them in String() and MarshalJSON().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidTopP indicates top_p is out of range.
	ErrInvalidTopP = errors.New("invalid top_p")

	// ErrInvalidMaxOutputTokens indicates max_output_tokens is out of range.
	ErrInvalidMaxOutputTokens = errors.New("invalid max output tokens")

	// ErrInvalidMaxIterations indicates max_iterations is out of range.
	ErrInvalidMaxIterations = errors.New("invalid max iterations")

	// ErrInvalidConversationTTL indicates a negative conversation TTL.
	ErrInvalidConversationTTL = errors.New("invalid conversation TTL")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidListenAddr indicates the HTTP listen address is empty.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model configuration
	ModelName       string  `mapstructure:"model_name" json:"model_name"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`
	TopP            float32 `mapstructure:"top_p" json:"top_p"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens" json:"max_output_tokens"`

	// Turn orchestration
	MaxIterations    int `mapstructure:"max_iterations" json:"max_iterations"`
	CallTimeoutMs    int `mapstructure:"call_timeout_ms" json:"call_timeout_ms"`
	QueueDepth       int `mapstructure:"queue_depth" json:"queue_depth"`
	HistoryWindow    int `mapstructure:"history_window" json:"history_window"`
	MaxConversations int `mapstructure:"max_conversations" json:"max_conversations"`

	// ConversationTTLMinutes evicts conversations idle longer than this.
	// 0 disables time-based eviction; the capacity bound still applies.
	ConversationTTLMinutes int `mapstructure:"conversation_ttl_minutes" json:"conversation_ttl_minutes"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`

	// Observability
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration with priority env > file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".assistant")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine: defaults plus env cover it.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL beats individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("top_p", 0.8)
	viper.SetDefault("max_output_tokens", 512)

	viper.SetDefault("max_iterations", 5)
	viper.SetDefault("call_timeout_ms", 10000)
	viper.SetDefault("queue_depth", 4)
	viper.SetDefault("history_window", 20)
	viper.SetDefault("max_conversations", 10000)
	viper.SetDefault("conversation_ttl_minutes", 1440)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "assistant")
	viper.SetDefault("postgres_password", "assistant_dev_password")
	viper.SetDefault("postgres_db_name", "assistant")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 30)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "assistant")
	viper.SetDefault("tracing.environment", "dev")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds runtime overrides explicitly. GEMINI_API_KEY
// deliberately stays out of the struct; APIKey() reads it straight
// from the environment.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: binding %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "ASSISTANT_MODEL_NAME")
	mustBind("listen_addr", "ASSISTANT_LISTEN_ADDR")
	mustBind("trust_proxy", "ASSISTANT_TRUST_PROXY")
	mustBind("log_level", "ASSISTANT_LOG_LEVEL")
	mustBind("log_json", "ASSISTANT_LOG_JSON")
	mustBind("tracing.enabled", "ASSISTANT_TRACING_ENABLED")
	mustBind("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// APIKey returns the Gemini API key from the environment.
func (c *Config) APIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// CallTimeout returns the per-call timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMs) * time.Millisecond
}

// ConversationTTL returns the idle-conversation lifetime as a duration.
// Zero means time-based eviction is disabled.
func (c *Config) ConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLMinutes) * time.Minute
}

// maskedValue uses full-width blocks so masked output can never be a
// substring of the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for
// debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields. When adding new secrets, update
// this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so secrets never print by accident.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

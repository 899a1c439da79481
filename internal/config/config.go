package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the application reads at startup. The stream
// thresholds were chosen empirically; they are configuration rather than
// constants so deployments can adjust them without a rebuild.
type Config struct {
	AppPort      int    `mapstructure:"APP_PORT"`
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	OllamaURL   string `mapstructure:"OLLAMA_URL"`
	OllamaModel string `mapstructure:"OLLAMA_MODEL"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`

	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL string `mapstructure:"ANTHROPIC_BASE_URL"`
	AnthropicModel   string `mapstructure:"ANTHROPIC_MODEL"`

	GeminiAPIKey  string `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL string `mapstructure:"GEMINI_BASE_URL"`
	GeminiModel   string `mapstructure:"GEMINI_MODEL"`

	// DefaultProvider is the provider selected when the client does not
	// name one. SupportProvider serves background follow-up completions
	// (concept extraction, review cards).
	DefaultProvider string `mapstructure:"DEFAULT_PROVIDER"`
	SupportProvider string `mapstructure:"SUPPORT_PROVIDER"`

	// Stream session tunables.
	FlushIntervalMs    int `mapstructure:"FLUSH_INTERVAL_MS"`
	FlushSizeChars     int `mapstructure:"FLUSH_SIZE_CHARS"`
	StreamIdleTimeoutS int `mapstructure:"STREAM_IDLE_TIMEOUT_S"`
	StreamMaxBytes     int `mapstructure:"STREAM_MAX_BYTES"`
	SessionMaxAgeS     int `mapstructure:"SESSION_MAX_AGE_S"`
	AvailabilityTTLS   int `mapstructure:"AVAILABILITY_TTL_S"`
}

func (c *Config) FlushInterval() time.Duration { return time.Duration(c.FlushIntervalMs) * time.Millisecond }
func (c *Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.StreamIdleTimeoutS) * time.Second
}
func (c *Config) SessionMaxAge() time.Duration { return time.Duration(c.SessionMaxAgeS) * time.Second }
func (c *Config) AvailabilityTTL() time.Duration {
	return time.Duration(c.AvailabilityTTLS) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("DATABASE_PATH", "/data/lectern.db")
	viper.SetDefault("LOG_LEVEL", "INFO")

	viper.SetDefault("OLLAMA_URL", "http://localhost:11434")
	viper.SetDefault("OLLAMA_MODEL", "llama3.1")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	viper.SetDefault("ANTHROPIC_API_KEY", "")
	viper.SetDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com")
	viper.SetDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest")
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")

	viper.SetDefault("DEFAULT_PROVIDER", "ollama")
	viper.SetDefault("SUPPORT_PROVIDER", "")

	viper.SetDefault("FLUSH_INTERVAL_MS", 50)
	viper.SetDefault("FLUSH_SIZE_CHARS", 500)
	viper.SetDefault("STREAM_IDLE_TIMEOUT_S", 60)
	viper.SetDefault("STREAM_MAX_BYTES", 2*1024*1024)
	viper.SetDefault("SESSION_MAX_AGE_S", 90)
	viper.SetDefault("AVAILABILITY_TTL_S", 30)

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./backend")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

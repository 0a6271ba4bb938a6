package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const envPrefix = "CHAT"

type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Title   TitleConfig   `mapstructure:"title" yaml:"title"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StorageConfig selects the conversation store. Driver is one of sqlite,
// postgres or memory; DSN is a file path for sqlite and a connection string
// for postgres.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Address  string        `mapstructure:"address" yaml:"address"`
	Password string        `mapstructure:"password" yaml:"password"`
	Database int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LLMConfig struct {
	Provider     string  `mapstructure:"provider" yaml:"provider"`
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url"`
	Token        string  `mapstructure:"token" yaml:"token"`
	Model        string  `mapstructure:"model" yaml:"model"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	SystemPrompt string  `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// TitleConfig configures conversation naming. An empty Model reuses LLM.Model.
type TitleConfig struct {
	Model          string `mapstructure:"model" yaml:"model"`
	MaxInputTokens int    `mapstructure:"max_input_tokens" yaml:"max_input_tokens"`
}

type AuthConfig struct {
	JwtSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8100")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "pad-chat.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.base_url", "http://localhost:11434/v1/")
	v.SetDefault("llm.token", "")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.system_prompt", "")

	v.SetDefault("title.model", "")
	v.SetDefault("title.max_input_tokens", 100)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads path (optional) and applies CHAT_* environment overrides,
// e.g. CHAT_LLM_MODEL for llm.model. When llm.token is unset, the provider's
// usual key variable (OPENAI_API_KEY or ANTHROPIC_API_KEY) is used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("openai_api_key", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.LLM.Token == "" {
		switch cfg.LLM.Provider {
		case ProviderOpenAI:
			cfg.LLM.Token = v.GetString("openai_api_key")
		case ProviderAnthropic:
			cfg.LLM.Token = v.GetString("anthropic_api_key")
		}
	}
	if cfg.Title.Model == "" {
		cfg.Title.Model = cfg.LLM.Model
	}
	return &cfg, nil
}

// Validate checks the settings every entry point needs.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
	case ProviderAnthropic:
		if c.LLM.Token == "" {
			errs = append(errs, errors.New("llm.token (or ANTHROPIC_API_KEY) is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		errs = append(errs, errors.New("redis.address is required when redis is enabled"))
	}
	return multierr.Combine(errs...)
}

// ValidateServer additionally requires what the HTTP server needs.
func (c *AppConfig) ValidateServer() error {
	err := c.Validate()
	if c.Auth.JwtSecret == "" {
		err = multierr.Append(err, errors.New("auth.jwt_secret is required"))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr is required"))
	}
	return err
}

// Package app wires configuration into a running chat service.
package app

import (
	"context"
	"fmt"

	"github.com/RichardoC/pad-chat/internal/chat"
	"github.com/RichardoC/pad-chat/internal/config"
	"github.com/RichardoC/pad-chat/internal/db"
	"github.com/RichardoC/pad-chat/internal/llm"
	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// The openai client refuses an empty token; local endpoints ignore it.
const placeholderToken = "fake"

const titleMaxTokens = 32

type App struct {
	Config  *config.AppConfig
	Logger  *zap.Logger
	Store   db.Store
	Service *chat.Service
}

func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// New builds the store, the model clients and the chat service from cfg.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	store, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	model, err := NewModelClient(cfg.LLM, cfg.LLM.Model, llm.WithSystemPrompt(systemPrompt(cfg.LLM)),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens))
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}

	titleModel, err := NewModelClient(cfg.LLM, cfg.Title.Model, llm.WithSystemPrompt(llm.TitleSystemPrompt),
		llm.WithTemperature(0),
		llm.WithMaxTokens(titleMaxTokens))
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}
	titles := llm.NewTitleService(titleModel, logger, llm.WithMaxInputTokens(cfg.Title.MaxInputTokens))

	logger.Info("chat service ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("title_model", cfg.Title.Model))

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Service: chat.NewService(store, model, titles, logger),
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// NewStore opens the configured backend and, when enabled, puts the redis
// cache in front of it.
func NewStore(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err = db.NewSQLite(cfg.Storage.DSN)
	case config.DriverPostgres:
		store, err = db.NewPostgres(cfg.Storage.DSN)
	case config.DriverMemory:
		store = db.NewMemory()
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("driver", cfg.Storage.Driver))
		return nil, err
	}

	if !cfg.Redis.Enabled {
		return store, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	cached, err := db.NewCachedStore(ctx, store, client, cfg.Redis.TTL, logger)
	if err != nil {
		logger.Error("failed to connect to redis",
			zap.Error(err),
			zap.String("address", cfg.Redis.Address))
		return nil, multierr.Combine(err, client.Close(), store.Close())
	}
	return cached, nil
}

// NewModelClient builds a client for the configured provider using model.
func NewModelClient(cfg config.LLMConfig, model string, opts ...llm.Option) (llm.ModelClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		token := cfg.Token
		if token == "" {
			token = placeholderToken
		}
		svc, err := llm.New(cfg.BaseURL, token, model, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
		}
		return svc, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropic(llm.NewAnthropicClient(cfg.Token), model, opts...), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func systemPrompt(cfg config.LLMConfig) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return llm.DefaultSystemPrompt
}

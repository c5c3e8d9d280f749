package main

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"github.com/suPer8Hu/bi-assistant/internal/assistant"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/config"
	"github.com/suPer8Hu/bi-assistant/internal/db"
	"github.com/suPer8Hu/bi-assistant/internal/incident"
	"github.com/suPer8Hu/bi-assistant/internal/intent"
	"github.com/suPer8Hu/bi-assistant/internal/logging"
	"github.com/suPer8Hu/bi-assistant/internal/schemaindex"
	"github.com/suPer8Hu/bi-assistant/internal/sqlpipe"
	"github.com/suPer8Hu/bi-assistant/internal/store/redisstore"
	"github.com/suPer8Hu/bi-assistant/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg       config.Config
	db        *gorm.DB
	repo      *chat.Repo
	tools     *incident.Tools
	assistant *assistant.Assistant

	closers []func()
}

// newBase loads config, logging and the database only.
func newBase(ctx context.Context) (*app, error) {
	cfg := config.Load()
	a := &app{cfg: cfg}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	a.onClose(func() { _ = logCloser.Close() })

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = gdb
	a.repo = chat.NewRepo(gdb)
	a.tools = incident.NewTools(gdb)
	a.onClose(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return a, nil
}

// newApp is newBase plus the model provider and pipelines.
func newApp(ctx context.Context) (*app, error) {
	a, err := newBase(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg

	tracer, meter, shutdown, err := telemetry.Init(ctx, cfg.TelemetryDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(shutdown)

	provider, err := a.provider(ctx, tracer, meter)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []sqlpipe.Option{sqlpipe.WithCache(a.cache(ctx))}
	if idx := a.schemaIndex(ctx); idx != nil {
		opts = append(opts, sqlpipe.WithSchemaHints(idx))
	}
	pipe := sqlpipe.New(provider, a.db, sqlpipe.Config{
		Dialect:  db.DialectName(cfg.DBDriver),
		ReadOnly: cfg.SQLReadOnly,
		MaxRows:  cfg.SQLMaxRows,
	}, opts...)

	a.assistant = assistant.New(provider,
		intent.NewClassifier(provider, cfg.ChatHistoryLimit),
		pipe,
		incident.NewAnalyzer(provider, incident.NewDispatcher(a.tools)),
		cfg.ChatHistoryLimit,
	)
	return a, nil
}

func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("openai", "gpt-4o-mini", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, model), nil
	})
	reg.Register("ollama", "llama3.1", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})
	reg.Register("anthropic", "claude-3-5-haiku-latest", func(ctx context.Context, model string) (ai.Provider, error) {
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
		}
		return ai.NewAnthropicProvider(cfg.AnthropicAPIKey, model), nil
	})
	reg.Register("gemini", "gemini-1.5-flash", func(ctx context.Context, model string) (ai.Provider, error) {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required")
		}
		return ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, model)
	})
	return reg
}

func (a *app) provider(ctx context.Context, tracer trace.Tracer, meter metric.Meter) (ai.Provider, error) {
	p, err := newRegistry(a.cfg).Get(ctx, a.cfg.AIProvider, a.cfg.AIModel)
	if err != nil {
		return nil, err
	}
	if c, ok := p.(io.Closer); ok {
		a.onClose(func() { _ = c.Close() })
	}
	log.Printf("ai provider=%s model=%s", a.cfg.AIProvider, a.cfg.AIModel)
	return ai.Instrument(p, a.cfg.AIProvider, tracer, meter)
}

func (a *app) cache(ctx context.Context) sqlpipe.Cache {
	if a.cfg.RedisAddr == "" {
		return redisstore.Nop{}
	}
	rs := redisstore.New(redisstore.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
		TTL:      a.cfg.TranslationCacheTTL,
	})
	if err := rs.Ping(ctx); err != nil {
		log.Warnf("redis unavailable, translation cache disabled addr=%s err=%v", a.cfg.RedisAddr, err)
		_ = rs.Close()
		return redisstore.Nop{}
	}
	a.onClose(func() { _ = rs.Close() })
	return rs
}

// schemaIndex returns column hints when embeddings are configured and the index exists.
func (a *app) schemaIndex(ctx context.Context) *schemaindex.Index {
	emb, err := a.embedder(ctx)
	if err != nil || emb == nil {
		return nil
	}
	if !a.db.Migrator().HasTable(&schemaindex.Entry{}) {
		return nil
	}
	return schemaindex.New(a.db, emb)
}

func (a *app) embedder(ctx context.Context) (*ai.GeminiEmbedder, error) {
	if a.cfg.GeminiAPIKey == "" || a.db.Dialector.Name() != db.DriverPostgres {
		return nil, nil
	}
	emb, err := ai.NewGeminiEmbedder(ctx, a.cfg.GeminiAPIKey, a.cfg.EmbedModel)
	if err != nil {
		log.Warnf("gemini embedder unavailable err=%v", err)
		return nil, err
	}
	a.onClose(func() { _ = emb.Close() })
	return emb, nil
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

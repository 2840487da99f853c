package main

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PabloGalante/mixer-agent/internal/adapters/device"
	"github.com/PabloGalante/mixer-agent/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/mixer-agent/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/mixer-agent/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/mixer-agent/internal/adapters/storage/redis"
	"github.com/PabloGalante/mixer-agent/internal/app/conversation"
	"github.com/PabloGalante/mixer-agent/internal/app/mixer"
	"github.com/PabloGalante/mixer-agent/internal/app/registry"
	"github.com/PabloGalante/mixer-agent/internal/app/tools"
	"github.com/PabloGalante/mixer-agent/internal/config"
	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

// app is everything a command needs, built once from configuration.
type app struct {
	registry   *registry.Registry
	dispatcher *mixer.Dispatcher
	service    *conversation.Service

	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			observability.Logger().Warn("close failed", "error", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := observability.Logger()

	reg, err := registry.New(cfg.Instruments, cfg.Synonyms)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	bridge, err := device.NewBridge(device.Config{
		BaseURL:        cfg.Device.BaseURL,
		ConnectTimeout: cfg.Device.ConnectTimeout,
		ReadTimeout:    cfg.Device.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	log.Info("device bridge ready", "base_url", cfg.Device.BaseURL)

	dispatcher := mixer.NewDispatcher(reg, bridge)

	table, err := tools.NewTable(dispatcher)
	if err != nil {
		return nil, fmt.Errorf("build tool table: %w", err)
	}
	for _, decl := range table.Declarations() {
		log.Info("tool registered", "tool", decl.Name, "description", decl.Description)
	}

	a := &app{registry: reg, dispatcher: dispatcher}

	history, err := buildHistory(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := buildEngine(ctx, cfg, reg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = conversation.NewService(engine, history, table)
	return a, nil
}

func buildHistory(ctx context.Context, cfg *config.Config, a *app) (domain.HistoryStore, error) {
	log := observability.Logger()

	switch cfg.History.Backend {
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		store := redisstore.NewHistoryStore(client, cfg.History.MaxTurns, cfg.History.TTL)
		a.closers = append(a.closers, store)
		log.Info("using redis history", "addr", cfg.Redis.Addr)
		return store, nil

	case "firestore":
		store, err := firestorestore.NewStore(ctx, cfg.GCP.Project, cfg.History.MaxTurns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		log.Info("using firestore history", "project", cfg.GCP.Project)
		return store, nil

	default:
		log.Info("using in-memory history",
			"max_conversations", cfg.History.MaxConversations,
			"ttl", cfg.History.TTL.String(),
		)
		return memstore.NewHistoryStore(memstore.Config{
			MaxTurns:         cfg.History.MaxTurns,
			MaxConversations: cfg.History.MaxConversations,
			TTL:              cfg.History.TTL,
		}), nil
	}
}

func buildEngine(ctx context.Context, cfg *config.Config, reg *registry.Registry) (domain.NLUEngine, error) {
	log := observability.Logger()
	prompt := llm.SystemPrompt(reg.Names())

	switch cfg.LLM.Provider {
	case "gemini", "vertex":
		log.Info("using gemini engine", "vertex", cfg.LLM.Provider == "vertex", "model", cfg.LLM.Model)
		return llm.NewGeminiEngine(ctx, llm.GeminiConfig{
			Vertex:       cfg.LLM.Provider == "vertex",
			Project:      cfg.GCP.Project,
			Location:     cfg.GCP.Location,
			APIKey:       cfg.LLM.APIKey,
			Model:        cfg.LLM.Model,
			SystemPrompt: prompt,
			Temperature:  cfg.LLM.Temperature,
			MaxToolSteps: cfg.LLM.MaxToolSteps,
		})

	case "openai":
		log.Info("using openai-compatible engine", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
		return llm.NewOpenAIEngine(llm.OpenAIConfig{
			BaseURL:      cfg.LLM.BaseURL,
			APIKey:       cfg.LLM.APIKey,
			Model:        cfg.LLM.Model,
			SystemPrompt: prompt,
			Temperature:  cfg.LLM.Temperature,
			MaxToolSteps: cfg.LLM.MaxToolSteps,
		})

	default:
		log.Info("using mock engine")
		return llm.NewMockEngine(func(word string) (string, bool) {
			inst, err := reg.Resolve(word)
			if err != nil {
				return "", false
			}
			return inst.Name, true
		}), nil
	}
}

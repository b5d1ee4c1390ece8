package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/deskbridge/deskbridge/internal/bridge"
	"github.com/deskbridge/deskbridge/internal/channel/telegram"
	"github.com/deskbridge/deskbridge/internal/chatwoot"
	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/correlation"
	"github.com/deskbridge/deskbridge/internal/db"
	"github.com/deskbridge/deskbridge/internal/handlers"
	"github.com/deskbridge/deskbridge/internal/knowledge"
	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/maintenance"
	"github.com/deskbridge/deskbridge/internal/server"
	"github.com/deskbridge/deskbridge/internal/storage/postgres"
	"github.com/deskbridge/deskbridge/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideStateStore,
			provideLearnedStore,
			provideMatcher,
			provideChatwootClient,
			provideTelegramAdapter,
			conversation.NewKeyedLock,
			correlation.NewTagger,
			provideOrchestrator,
			provideSweeper,
			provideServer,
		),
		fx.Invoke(
			startSupervisorChannel,
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, err
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideStateStore(pool *pgxpool.Pool) conversation.Store {
	return postgres.NewStateStore(pool)
}

func provideLearnedStore(pool *pgxpool.Pool) knowledge.LearnedStore {
	return postgres.NewLearnedStore(pool)
}

// provideMatcher loads static entries from the database, falling back to
// the knowledge file when the table is empty.
func provideMatcher(log *slog.Logger, cfg config.Config, pool *pgxpool.Pool, learned knowledge.LearnedStore) (*knowledge.Matcher, error) {
	ctx := context.Background()
	entries, err := postgres.NewKnowledgeStore(pool).LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		entries, err = knowledge.FileStore{Path: cfg.Matcher.KnowledgePath}.LoadAll(ctx)
		if err != nil {
			return nil, err
		}
	}
	log.Info("knowledge base loaded", slog.Int("entries", len(entries)))
	opts := knowledge.Options{
		LearnedMinScore: cfg.Matcher.LearnedMinScore,
		KBMinScore:      cfg.Matcher.KBMinScore,
		PatternHitScore: cfg.Matcher.PatternHitScore,
	}
	return knowledge.NewMatcher(log, opts, entries, learned), nil
}

func provideChatwootClient(log *slog.Logger, cfg config.Config) *chatwoot.Client {
	return chatwoot.NewClient(log, cfg.Chatwoot)
}

func provideTelegramAdapter(log *slog.Logger, cfg config.Config) (*telegram.Adapter, error) {
	return telegram.New(log, cfg.Telegram.BotToken, cfg.Telegram.SupervisorChatID)
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, matcher *knowledge.Matcher, learned knowledge.LearnedStore, states conversation.Store, locks *conversation.KeyedLock, tagger *correlation.Tagger, client *chatwoot.Client, adapter *telegram.Adapter) *bridge.Orchestrator {
	opts := bridge.Options{
		BotName:          cfg.Bridge.BotName,
		BrandName:        cfg.Bridge.BrandName,
		AnswerWindow:     cfg.Bridge.AnswerWindow(),
		ShortcutCooldown: cfg.Bridge.ShortcutCooldown(),
		TTL: knowledge.TTLPolicy{
			DefaultDays: cfg.Learned.DefaultTTLDays,
			PriceDays:   cfg.Learned.PriceTTLDays,
		},
		LearnedMinScore: cfg.Matcher.LearnedMinScore,
		KBMinScore:      cfg.Matcher.KBMinScore,
	}
	return bridge.NewOrchestrator(log, opts, matcher, learned, states, locks, tagger, client, adapter)
}

func provideSweeper(log *slog.Logger, cfg config.Config, states conversation.Store, learned knowledge.LearnedStore) *maintenance.Sweeper {
	return maintenance.NewSweeper(log, states, learned, cfg.Bridge.StateRetention(), cfg.Bridge.MaintenanceSchedule)
}

func provideServer(log *slog.Logger, cfg config.Config, orchestrator *bridge.Orchestrator, states conversation.Store) *server.Server {
	target := fmt.Sprintf("telegram:%d", cfg.Telegram.SupervisorChatID)
	webhookHandler := handlers.NewWebhookHandler(log, orchestrator, states, cfg.Server.WebhookSecret, target)
	return server.New(log, cfg.Server.Addr, handlers.NewPingHandler(), webhookHandler)
}

func startSupervisorChannel(lc fx.Lifecycle, adapter *telegram.Adapter, orchestrator *bridge.Orchestrator) {
	adapter.SetHandler(orchestrator)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return adapter.Start(context.Background()) },
		OnStop:  func(ctx context.Context) error { adapter.Stop(); return nil },
	})
}

func startSweeper(lc fx.Lifecycle, sweeper *maintenance.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sweeper.Start() },
		OnStop:  func(ctx context.Context) error { sweeper.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting deskbridge %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

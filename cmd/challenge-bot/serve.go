package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/challenge-bot/internal/api"
	"github.com/terra-clan/challenge-bot/internal/bot"
	"github.com/terra-clan/challenge-bot/internal/catalog"
	"github.com/terra-clan/challenge-bot/internal/chat"
	"github.com/terra-clan/challenge-bot/internal/cleanup"
	"github.com/terra-clan/challenge-bot/internal/compiler"
	"github.com/terra-clan/challenge-bot/internal/config"
	"github.com/terra-clan/challenge-bot/internal/health"
	"github.com/terra-clan/challenge-bot/internal/present"
	"github.com/terra-clan/challenge-bot/internal/session"
	"github.com/terra-clan/challenge-bot/internal/state"
	"github.com/terra-clan/challenge-bot/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the HTTP API and the cleanup worker",
	Long: `Serve loads configuration from the environment, connects the compilation
journal and shared state, loads the challenge catalog and runs until SIGINT or
SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting challenge-bot",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"prefix", cfg.Session.Prefix,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	registry := health.NewRegistry(5 * time.Second)

	journal, err := openJournal(initCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer journal.Close()
	registry.Register("journal", health.CheckerFunc(journal.Ping))

	store, err := openState(initCtx, cfg.Redis)
	if err != nil {
		return err
	}
	defer store.Close()
	registry.Register("state", store)

	cat, err := catalog.Load(cfg.Catalog.ChallengesDir, cfg.Catalog.TemplatesDir)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	slog.Info("catalog loaded", "challenges", cat.Count(), "levels", len(cat.Levels()))

	wandbox := compiler.NewWandbox(cfg.Compiler.BaseURL, cfg.Compiler.Timeout,
		compiler.WithCacheTTL(cfg.Compiler.CacheTTL),
		compiler.WithSave(cfg.Compiler.Save),
	)
	registry.Register("compiler", health.CheckerFunc(func(ctx context.Context) error {
		_, err := wandbox.Languages(ctx)
		return err
	}))

	hub := chat.NewHub(chat.User{ID: cfg.Chat.BotID, Tag: cfg.Chat.BotName},
		chat.WithAttachmentLimit(cfg.Chat.AttachmentLimit),
		chat.WithHistoryLimit(cfg.Chat.HistoryLimit),
	)
	presenter := present.New(cfg.Session.Prefix, cfg.Session.Thumbnail)

	opts := session.DefaultOptions()
	opts.AnswerTimeout = cfg.Session.AnswerTimeout
	opts.ActionTimeout = cfg.Session.ActionTimeout
	opts.LoadingEmoji = cfg.Session.LoadingEmoji
	opts.Prefix = cfg.Session.Prefix

	manager := session.NewManager(session.Deps{
		Catalog:   cat,
		Compiler:  wandbox,
		Transport: hub,
		Presenter: presenter,
		Journal:   journal,
		Stats:     store,
	}, opts, store, cfg.Session.MaxAge)

	dispatcher := bot.NewDispatcher(hub, hub, manager, presenter, cfg.Session.Prefix)
	cleaner := cleanup.NewCleaner(manager, cfg.Cleanup.Interval, cfg.Session.MaxAge)
	server := api.NewServer(cfg.Server, api.Deps{
		Catalog:  cat,
		Sessions: manager,
		Journal:  journal,
		Stats:    store,
		Health:   registry,
		Hub:      hub,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return cleaner.Run(gctx) })

	err = g.Wait()
	slog.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := manager.Shutdown(shutdownCtx); serr != nil {
		slog.Error("session shutdown error", "error", serr)
	}

	slog.Info("challenge-bot stopped")
	return err
}

// openJournal connects Postgres and applies migrations, or keeps the journal
// in memory when no DSN is configured.
func openJournal(ctx context.Context, cfg config.DatabaseConfig) (storage.Repository, error) {
	if cfg.DSN == "" {
		slog.Warn("DATABASE_DSN not set, compilation journal kept in memory")
		return storage.NewMemoryRepository(0), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}

	slog.Info("running database migrations", "dir", cfg.MigrationsDir)
	if err := repo.Migrate(ctx, cfg.MigrationsDir); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database connected successfully")
	return repo, nil
}

// openState connects Redis, or keeps locks and counters in process.
func openState(ctx context.Context, cfg config.RedisConfig) (state.Store, error) {
	if cfg.Address == "" {
		slog.Warn("REDIS_ADDRESS not set, session locks are local to this process")
		return state.NewMemoryStore(), nil
	}

	store, err := state.NewRedisStore(ctx, cfg.Address, cfg.Password, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connected", "address", cfg.Address)
	return store, nil
}

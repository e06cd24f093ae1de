package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"inboxagent/internal/agent"
	"inboxagent/internal/api"
	"inboxagent/internal/config"
	"inboxagent/internal/domain"
	"inboxagent/internal/prompt"
	"inboxagent/internal/provider"
	"inboxagent/internal/source"
	"inboxagent/internal/store"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = setupLogger("info")

	root := &cobra.Command{
		Use:     "inboxagent",
		Short:   "inboxagent: prompt-driven email inbox agent",
		Long:    "inboxagent categorizes emails, extracts action items, drafts replies, and answers questions about your inbox using an LLM. Drafts are never sent.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.inboxagent/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(processCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.DateTime,
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func metricsEndpoint(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	if cfg.Metrics.Endpoint == "" {
		return "/metrics"
	}
	return cfg.Metrics.Endpoint
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		cfg.General.DataDir = config.ExpandPath(cfg.General.DataDir)
	}
	logger = setupLogger(cfg.General.LogLevel)
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: parseLevel(cfg.General.LogLevel)}))
		}
	}
	return cfg
}

// app bundles the wired components shared by serve, seed, and process.
type app struct {
	cfg       *config.Config
	db        *store.SQLiteStore
	prompts   *prompt.Store
	annotator *agent.Annotator
	chat      *agent.Chat
	drafter   *agent.Drafter
	mock      domain.EmailSource
	live      domain.EmailSource
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := store.NewSQLiteStore(filepath.Join(cfg.General.DataDir, "inboxagent.db"), logger)
	if err != nil {
		return nil, err
	}

	factory := provider.NewFactory(cfg, logger)
	prov, err := factory.DefaultProvider()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("provider: %w", err)
	}
	gateway := provider.NewGateway(prov, time.Duration(cfg.Pipeline.TimeoutSeconds)*time.Second, logger)

	prompts, err := prompt.NewStore(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		db:        db,
		prompts:   prompts,
		annotator: agent.NewAnnotator(gateway, db, prompts, cfg.Pipeline.Concurrency, logger),
		chat:      agent.NewChat(gateway, prompts, logger),
		drafter:   agent.NewDrafter(gateway, db.Drafts(), prompts, logger),
		mock:      source.NewMockSource(),
	}
	if cfg.Source.Mode == "imap" {
		a.live = source.NewIMAPSource(source.IMAPConfig{
			Server:   cfg.Source.IMAP.Server,
			Username: cfg.Source.IMAP.Username,
			Password: cfg.Source.IMAP.Password,
			Mailbox:  cfg.Source.IMAP.Mailbox,
		}, logger)
	}
	return a, nil
}

func (a *app) close() {
	a.db.Close()
}

// seedSource picks the configured source: live IMAP when set up, otherwise
// the embedded mock inbox.
func (a *app) seedSource() domain.EmailSource {
	if a.live != nil {
		return a.live
	}
	return a.mock
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("set GEMINI_API_KEY in your environment, then run: inboxagent serve")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			server := api.NewServer(api.ServerConfig{
				Emails:    a.db,
				Drafts:    a.db.Drafts(),
				Prompts:   a.prompts,
				Annotator: a.annotator,
				Chat:      a.chat,
				Drafter:   a.drafter,
				Mock:      a.mock,
				Live:      a.live,
				SeedLimit: cfg.Source.Limit,
				MetricsAt: metricsEndpoint(cfg),
				Logger:    logger,
			})

			addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
			return server.Start(ctx, addr)
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load emails into the repository from the configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			src := a.seedSource()
			emails, err := src.Fetch(ctx, cfg.Source.Limit)
			if err != nil {
				return fmt.Errorf("fetch from %s: %w", src.Name(), err)
			}
			if err := a.db.UpsertAll(ctx, emails); err != nil {
				return err
			}
			logger.Info("inbox seeded", "source", src.Name(), "count", len(emails))
			return nil
		},
	}
}

func processCmd() *cobra.Command {
	var scopeFlag string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the annotation pipeline over stored emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			var scope agent.Scope
			switch scopeFlag {
			case "all":
				scope = agent.ScopeAll
			case "unannotated":
				scope = agent.ScopeUnannotated
			default:
				return fmt.Errorf("scope must be all or unannotated, got %q", scopeFlag)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.annotator.Run(ctx, scope)
			if err != nil {
				return err
			}
			logger.Info("pipeline finished", "attempted", summary.Attempted, "succeeded", summary.Succeeded)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", "all", "which emails to process: all or unannotated")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config, provider health, and inbox counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			fmt.Printf("inboxagent %s\n", version)
			fmt.Printf("config:   %s\n", resolveConfigPath())
			fmt.Printf("data dir: %s\n", cfg.General.DataDir)
			fmt.Printf("source:   %s\n", cfg.Source.Mode)

			factory := provider.NewFactory(cfg, logger)
			prov, err := factory.DefaultProvider()
			if err != nil {
				fmt.Printf("provider: unavailable (%v)\n", err)
			} else if herr := prov.Healthy(ctx); herr != nil {
				fmt.Printf("provider: %s (unhealthy: %v)\n", prov.Name(), herr)
			} else {
				fmt.Printf("provider: %s (healthy)\n", prov.Name())
			}

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			emails, err := a.db.List(ctx)
			if err != nil {
				return err
			}
			annotated := 0
			for i := range emails {
				if emails[i].Annotated() {
					annotated++
				}
			}
			drafts, err := a.db.ListDrafts(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("emails:   %d (%d annotated)\n", len(emails), annotated)
			fmt.Printf("drafts:   %d\n", len(drafts))
			return nil
		},
	}
}

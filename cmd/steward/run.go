package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stewardhq/steward/internal/action"
	"github.com/stewardhq/steward/internal/agent"
	"github.com/stewardhq/steward/internal/checkpoint"
	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/engine"
	"github.com/stewardhq/steward/internal/llm"
	"github.com/stewardhq/steward/internal/maintenance"
	"github.com/stewardhq/steward/internal/mcp"
	"github.com/stewardhq/steward/internal/notify"
	"github.com/stewardhq/steward/internal/permission"
	"github.com/stewardhq/steward/internal/router"
	"github.com/stewardhq/steward/internal/rules"
	"github.com/stewardhq/steward/internal/taskstore"
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent daemon",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := taskstore.New(cfg.General.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}
	defer store.Close()

	checkpoints, err := checkpoint.NewSQLiteStore(store.DB())
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}

	ruleSource, err := rules.NewSource(cfg.General.RulesPath)
	if err != nil {
		return fmt.Errorf("loading permission rules: %w", err)
	}
	evaluator := permission.NewEvaluator(ruleSource)

	client := llm.NewHTTPClient(llm.HTTPConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey(),
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout(),
	})

	registry := action.NewRegistry()
	action.RegisterBuiltins(registry, store, cfg.General.Author)

	for _, srv := range cfg.MCP.Servers {
		mcpClient, err := mcp.NewClient(srv.Command, srv.Args, os.Environ())
		if err != nil {
			return fmt.Errorf("starting MCP server %s: %w", srv.Command, err)
		}
		defer mcpClient.Close()
		if err := action.RegisterMCP(registry, mcpClient); err != nil {
			return fmt.Errorf("registering MCP tools from %s: %w", srv.Command, err)
		}
	}

	notifier := buildNotifier(cfg)
	eng := engine.New(client, registry, evaluator, checkpoints, cfg.LLM.MaxSteps)
	interrupts := router.New(store, notifier, cfg.General.Author)

	loop := agent.New(store, eng, interrupts, notifier, agent.Config{
		PollInterval:       cfg.Agent.PollInterval(),
		ErrorRetryInterval: cfg.Agent.ErrorRetryInterval(),
		MaxRetries:         cfg.Agent.MaxRetries,
		ShutdownTimeout:    cfg.Agent.ShutdownTimeout(),
		Author:             cfg.General.Author,
	})

	sweeper, err := maintenance.NewSweeper(store, checkpoints, cfg.Maintenance.Cron, cfg.Maintenance.HistoryKeep)
	if err != nil {
		return fmt.Errorf("parsing maintenance schedule: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[steward] agent starting (db=%s)", cfg.General.DatabasePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return ruleSource.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("[steward] agent stopped")
	return nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

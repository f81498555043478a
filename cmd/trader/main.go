package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"headless-trader/internal/config"
	"headless-trader/internal/database"
	"headless-trader/internal/logger"
	"headless-trader/internal/market"
	"headless-trader/internal/trader"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir string
		url       string
		dryRun    bool
		paperCash float64
	)

	cmd := &cobra.Command{
		Use:   "trader",
		Short: "Run the tiered UP/DOWN trader",
		Long: `Run the tiered UP/DOWN trader and its HTTP command surface.

The trader polls the market price pair, fires at most one enabled tier per
cycle, and unwinds the opposite side after every buy. If a market URL is
configured (or passed with --url) trading starts immediately; otherwise use
POST /api/start.`,
		Example: `  trader --config ./configs
  trader --url https://example.com/event --dry-run`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configDir, url, dryRun, paperCash)
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "./configs", "directory containing config.yml")
	cmd.Flags().StringVar(&url, "url", "", "market URL to start trading on")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "trade against the in-process paper market")
	cmd.Flags().Float64Var(&paperCash, "paper-cash", 1000, "starting cash for the paper market")
	return cmd
}

func run(configDir, url string, dryRun bool, paperCash float64) error {
	// Load application configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		return err
	}
	dryRun = dryRun || cfg.Market.DryRun

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		return err
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Error("Failed to open trade ledger", zap.Error(err))
		return err
	}
	log.Info("Trade ledger ready", zap.String("dsn", cfg.Database.DSN))

	store := config.NewTradingStore(cfg.Trading.ConfigPath, log)
	doc, err := store.Load()
	if err != nil {
		log.Error("Failed to load trading config", zap.Error(err))
		return err
	}

	var surface market.Surface
	if dryRun {
		log.Warn("Dry run enabled. Trading against the paper market.")
		surface = market.NewPaperSurface(paperCash, market.DefaultPaperSeed(), log)
	} else {
		surface = market.NewRestClient(&cfg.Market, log)
	}

	engine := trader.NewEngine(log, surface, trader.NewState(doc, store), db, dryRun)
	api := trader.NewAPIServer(engine, cfg.Server.Port, log)
	api.Start()

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if url != "" || doc.Website.URL != "" {
		if err := engine.Start(ctx, url); err != nil {
			log.Error("Failed to start trading", zap.Error(err))
		}
	} else {
		log.Info("No market URL configured; waiting for POST /api/start")
	}

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := engine.Stop(shutdownCtx); err != nil && err != trader.ErrNotRunning {
		log.Warn("Failed to stop trader", zap.Error(err))
	}
	if err := api.Stop(shutdownCtx); err != nil {
		log.Warn("Failed to stop API server", zap.Error(err))
	}

	log.Info("Trader has been shut down.")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"headless-trader/internal/config"
	"headless-trader/internal/database"
	"headless-trader/internal/logger"
	"headless-trader/internal/stats"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir, logDir string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Tail trader logs and serve hourly trade statistics",
		Long: `Tail the trader's log files, count every verified buy by date and hour,
and serve daily, weekly and monthly breakdowns over HTTP.`,
		Example: `  stats --config ./configs
  stats --log-dir /var/log/trader`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configDir, logDir)
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "./configs", "directory containing config.yml")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory to watch (overrides stats.log_dir)")
	return cmd
}

func run(configDir, logDir string) error {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}
	if logDir != "" {
		cfg.Stats.LogDir = logDir
	}

	// The stats process must not write into the log it tails.
	cfg.Logger.File = ""
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}
	defer log.Sync()

	store, err := stats.NewStore(cfg.Stats.StorePath, log)
	if err != nil {
		log.Error("Failed to open stats store", zap.Error(err))
		return err
	}
	extractor, err := stats.NewExtractor(cfg.Stats.TradePattern)
	if err != nil {
		log.Error("Invalid trade pattern", zap.Error(err))
		return err
	}
	watcher, err := stats.NewWatcher(cfg.Stats.LogDir, cfg.Stats.FilePattern, cfg.Stats.WindowBytes, extractor, store, log)
	if err != nil {
		log.Error("Invalid file pattern", zap.Error(err))
		return err
	}

	// The ledger is optional for statistics; history is empty without it.
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Warn("Trade ledger unavailable, history disabled", zap.Error(err))
		db = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Error("Log watcher stopped", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.StatsPort),
		Handler:           stats.NewAPIHandler(log, store, db).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting stats server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("Stats server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down stats server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

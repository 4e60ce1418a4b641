package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/sitewatch/internal/config"
	"github.com/hazz-dev/sitewatch/internal/dashboard"
	"github.com/hazz-dev/sitewatch/internal/history"
	"github.com/hazz-dev/sitewatch/internal/logging"
	"github.com/hazz-dev/sitewatch/internal/metrics"
	"github.com/hazz-dev/sitewatch/internal/probe"
	"github.com/hazz-dev/sitewatch/internal/scheduler"
	"github.com/hazz-dev/sitewatch/internal/server"
	"github.com/hazz-dev/sitewatch/internal/status"
	"github.com/hazz-dev/sitewatch/internal/storage"
	"github.com/hazz-dev/sitewatch/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sitewatch",
		Short:        "Uptime and latency monitor for a single HTTP endpoint",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(pruneCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitor and its HTTP API",
		RunE:  runServe,
	}
}

func newProber(cfg *config.Config, logger *slog.Logger) *probe.Prober {
	return probe.New(cfg.Target.URL,
		probe.ProfilesFromConfig(cfg.Probe.Profiles),
		probe.WithClient(probe.NewHTTPClient(cfg.Target.InsecureSkipVerify, cfg.Target.FollowRedirects)),
		probe.WithLogger(logger),
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 2. Logger
	logger, logCloser := logging.New(cfg.Logging, os.Stdout)
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"target", cfg.Target.URL,
		"interval", cfg.Schedule.Interval.Duration,
		"profiles", len(cfg.Probe.Profiles),
	)

	// 3. History store, warm-started from SQLite when enabled
	store := history.New(cfg.History.Capacity)

	var db *storage.DB
	if cfg.Storage.Path != "" {
		db, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if cfg.Storage.WarmStart {
			n, err := db.WarmStart(cmd.Context(), store, store.Capacity())
			if err != nil {
				logger.Warn("warm start failed", "error", err)
			} else {
				logger.Info("history restored", "outcomes", n)
			}
		}
	}

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	store.OnAppend(metrics.New(reg).Observe)

	// 5. Scheduler
	sched := scheduler.New(newProber(cfg, logger), store,
		cfg.Schedule.Interval.Duration, cfg.Schedule.RetryDelay.Duration, logger)
	if db != nil {
		sched.AddSink(db)
	}

	// 6. API server
	apiServer := server.New(status.New(cfg.Target.URL, store), server.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     metrics.Handler(reg),
		Dashboard:   dashboard.Handler(),
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 8. Start scheduler
	sched.Start(ctx)
	logger.Info("monitoring started", "target", cfg.Target.URL)

	// 9. Start HTTP server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 10. Wait for signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		sched.Wait()
		return fmt.Errorf("HTTP server: %w", err)
	}

	// 11. Graceful shutdown
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single probe cycle against the configured target",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, closer := logging.New(cfg.Logging, cmd.ErrOrStderr())
	defer closer.Close()
	return executeCheck(cmd, newProber(cfg, logger))
}

func statusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print recent outcomes from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openConfiguredDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return executeStatus(cmd, db, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of outcomes to show")
	return cmd
}

func pruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest outcomes from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			db, err := openConfiguredDB()
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := db.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d outcomes\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 1000, "number of newest outcomes to keep")
	return cmd
}

func openConfiguredDB() (*storage.DB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.Path == "" {
		return nil, fmt.Errorf("storage.path is not configured; outcomes are kept in memory only")
	}
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

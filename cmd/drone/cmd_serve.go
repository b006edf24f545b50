package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drone_commander/internal/handlers"
	"drone_commander/internal/repository"
	"drone_commander/internal/server"
	"drone_commander/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	// polls that may be missed before the state is reported stale
	staleIntervals = 3
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, telemetry poller and log flusher",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	sqlDB, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	corr, err := openCorrelator(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = corr.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the API stays useful for logs while the drone is unreachable
	if err := handshake(ctx, cfg, corr, log); err != nil {
		log.Warnw("handshake_failed", "err", err)
	}

	var staleAfter time.Duration
	if cfg.Telemetry.Enabled {
		staleAfter = staleIntervals * cfg.Telemetry.Interval
	}
	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, service.Deps{
		Commander:  corr,
		Live:       corr,
		Logger:     log,
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		StaleAfter: staleAfter,
	})
	api := handlers.NewHandler(services, log,
		handlers.WithCommandRate(cfg.HTTP.CommandsPerSecond, cfg.HTTP.CommandBurst))
	srv := server.New(cfg.HTTP.Port, api.InitRoutes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("http_listening", "addr", srv.Addr())
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if cfg.Telemetry.Enabled {
		g.Go(func() error {
			services.Telemetry.Run(gctx, cfg.Telemetry.Interval)
			return nil
		})
	}
	if cfg.Flush.Interval > 0 {
		g.Go(func() error {
			services.EventLog.RunFlusher(gctx, cfg.Flush.Interval)
			return nil
		})
	}

	err = g.Wait()

	if cfg.Flush.Interval <= 0 {
		fctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if _, ferr := services.EventLog.Flush(fctx); ferr != nil {
			log.Errorw("final_flush_failed", "err", ferr)
		}
		cancel()
	}
	if cfg.Export.Path != "" {
		if xerr := services.EventLog.ExportFile(cfg.Export.Path); xerr != nil {
			log.Errorw("export_failed", "path", cfg.Export.Path, "err", xerr)
		} else {
			log.Infow("log_exported", "path", cfg.Export.Path)
		}
	}
	return err
}

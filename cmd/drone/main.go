package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"drone_commander/internal/config"
	"drone_commander/internal/correlator"
	"drone_commander/internal/logger"
	"drone_commander/internal/repository/db"
	"drone_commander/internal/transport"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "drone",
	Short:         "Send commands to a drone over UDP and keep an audit log of the replies",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default configs/config.yml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) *logger.Logger {
	return logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "drone.db")
		path = "drone.db"
	}
	return db.InitDB(path)
}

// openCorrelator binds the UDP socket and starts a correlator on it.
func openCorrelator(cfg *config.Config, log *logger.Logger) (*correlator.Correlator, error) {
	t, err := transport.DialUDP(transport.UDPConfig{
		PeerAddr:     cfg.Drone.Address,
		LocalPort:    cfg.Drone.LocalPort,
		MaxDatagram:  cfg.Drone.MaxDatagram,
		PollInterval: cfg.Drone.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	c := correlator.New(t,
		correlator.WithLogger(log),
		correlator.WithTimeout(cfg.Drone.CommandTimeout),
		correlator.WithLatePolicy(cfg.LatePolicy()),
	)
	log.Infow("correlator_started", "session", c.Session(), "drone", cfg.Drone.Address,
		"local", t.LocalAddr().String(), "late_reply_policy", cfg.LatePolicy())
	return c, nil
}

// handshake puts the drone into command mode when configured to.
func handshake(ctx context.Context, cfg *config.Config, c *correlator.Correlator, log *logger.Logger) error {
	if !cfg.Drone.Handshake {
		return nil
	}
	ev, err := c.Handshake(ctx)
	if err != nil {
		return err
	}
	log.Infow("handshake_ok", "latency", ev.Latency.Round(time.Millisecond))
	return nil
}

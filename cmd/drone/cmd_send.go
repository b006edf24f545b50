package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"drone_commander/internal/config"
	"drone_commander/internal/correlator"
	"drone_commander/internal/eventlog"
	"drone_commander/internal/repository"
	"drone_commander/internal/service"

	"github.com/spf13/cobra"
)

var (
	sendTimeout time.Duration
	sendPause   time.Duration
	sendOut     string
	sendPersist bool
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "reply window per command (default from config)")
	sendCmd.Flags().DurationVar(&sendPause, "wait", 0, "pause between commands")
	sendCmd.Flags().StringVarP(&sendOut, "out", "o", "", "write the text log to this file")
	sendCmd.Flags().BoolVar(&sendPersist, "persist", false, "store the session in the database")
}

var sendCmd = &cobra.Command{
	Use:   "send <command>...",
	Short: "Send commands one at a time and print each reply",
	Example: `  drone send battery? takeoff "up 50" land
  drone send --wait 2s --out flight.txt takeoff land`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	corr, err := openCorrelator(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = corr.Close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := handshake(ctx, cfg, corr, log); err != nil {
		return err
	}

	for i, text := range args {
		if i > 0 && sendPause > 0 {
			if err := corr.Wait(ctx, sendPause); err != nil {
				return err
			}
		}
		ev, err := corr.SendCommand(ctx, text, sendTimeout)
		printOutcome(out, ev, err)
		var sendErr *correlator.SendError
		if err != nil && !errors.As(err, &sendErr) {
			return err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, corr.ExportLog())

	if sendOut != "" {
		if err := corr.EventLog().SaveFile(sendOut); err != nil {
			return fmt.Errorf("write log: %w", err)
		}
	}
	if sendPersist {
		return persistSession(ctx, cfg, corr)
	}
	return nil
}

func printOutcome(w io.Writer, ev eventlog.Event, err error) {
	if err == nil {
		err = correlator.Err(ev)
	}
	switch {
	case errors.Is(err, correlator.ErrTimeout):
		fmt.Fprintf(w, "%-16s timed out\n", ev.Command)
	case err != nil:
		fmt.Fprintf(w, "%-16s failed: %v\n", ev.Command, err)
	case ev.DecodeError != "":
		fmt.Fprintf(w, "%-16s %q (undecodable: %s)\n", ev.Command, ev.Response, ev.DecodeError)
	default:
		fmt.Fprintf(w, "%-16s %s  (%s)\n", ev.Command, ev.Value.String(), ev.Latency.Round(time.Millisecond))
	}
}

func persistSession(ctx context.Context, cfg *config.Config, corr *correlator.Correlator) error {
	log := setupLogger(cfg)
	sqlDB, err := openDB(cfg, log)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	svc := service.NewEventLogService(repository.NewRepository(sqlDB).EventRepo, corr, log)
	n, err := svc.Flush(ctx)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	log.Infow("session_persisted", "session", corr.Session(), "events", n)
	return nil
}

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"drone_commander/internal/models"
	"drone_commander/internal/repository"
	"drone_commander/internal/service"

	"github.com/spf13/cobra"
)

var logFlags struct {
	from, to, command, session string
	timedOut                   bool
	limit                      int
}

func init() {
	rootCmd.AddCommand(logsCmd, exportCmd)
	for _, c := range []*cobra.Command{logsCmd, exportCmd} {
		f := c.Flags()
		f.StringVar(&logFlags.from, "from", "", "earliest send time (RFC3339 or YYYY-MM-DD)")
		f.StringVar(&logFlags.to, "to", "", "latest send time (RFC3339 or YYYY-MM-DD, whole day)")
		f.StringVar(&logFlags.command, "command", "", "only commands containing this text")
		f.StringVar(&logFlags.session, "session", "", "only this correlator session")
		f.BoolVar(&logFlags.timedOut, "timed-out", false, "only commands that timed out")
		f.IntVar(&logFlags.limit, "limit", 0, "maximum number of events")
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List persisted command events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openEventLog()
		if err != nil {
			return err
		}
		defer closeDB()

		f, err := logFilterFromFlags()
		if err != nil {
			return err
		}
		events, err := svc.List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events found.")
			return nil
		}
		return writeEventTable(cmd, events)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print persisted command events in the text log format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeDB, err := openEventLog()
		if err != nil {
			return err
		}
		defer closeDB()

		f, err := logFilterFromFlags()
		if err != nil {
			return err
		}
		text, err := svc.ExportPersisted(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("export events: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

func openEventLog() (*service.EventLogService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := setupLogger(cfg)
	sqlDB, err := openDB(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init sqlite: %w", err)
	}
	svc := service.NewEventLogService(repository.NewRepository(sqlDB).EventRepo, nil, log)
	return svc, func() { _ = sqlDB.Close() }, nil
}

func logFilterFromFlags() (service.LogFilter, error) {
	f := service.LogFilter{
		Command:      logFlags.command,
		Session:      logFlags.session,
		TimedOutOnly: logFlags.timedOut,
		Limit:        logFlags.limit,
	}
	var err error
	if logFlags.from != "" {
		if f.From, err = parseFlagTime(logFlags.from); err != nil {
			return f, fmt.Errorf("--from: %w", err)
		}
	}
	if logFlags.to != "" {
		if f.To, err = parseFlagTime(logFlags.to); err != nil {
			return f, fmt.Errorf("--to: %w", err)
		}
		if len(logFlags.to) == len(time.DateOnly) {
			f.To = f.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return f, nil
}

func parseFlagTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func writeEventTable(cmd *cobra.Command, events []models.CommandEvent) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSEQ\tSENT\tCOMMAND\tRESPONSE\tLATENCY\tSTATUS")
	for _, ev := range events {
		resp, latency := "-", "-"
		if ev.Response != nil {
			resp = strconv.Quote(*ev.Response)
		}
		if ev.LatencyMS != nil {
			latency = strconv.FormatFloat(*ev.LatencyMS, 'f', 1, 64) + "ms"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			shortSession(ev.SessionID),
			ev.Seq,
			ev.SentAt.Format(time.DateTime),
			ev.Command,
			resp,
			latency,
			eventStatus(ev),
		)
	}
	return w.Flush()
}

func eventStatus(ev models.CommandEvent) string {
	switch {
	case ev.SendError != "":
		return "send failed"
	case ev.TimedOut && ev.Response != nil:
		return "late reply"
	case ev.TimedOut:
		return "timed out"
	case ev.DecodeError != "":
		return "undecodable"
	default:
		return "ok"
	}
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

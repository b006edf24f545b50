package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"drone_commander/internal/models"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

var _ EventRepo = (*EventSQLite)(nil)

const (
	upsertCommandEventSQL = `
		INSERT INTO command_events (session_id, seq, command, response, sent_at, received_at,
			latency_ms, timed_out, send_error, decode_error, decoded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO UPDATE SET
			response=excluded.response,
			received_at=excluded.received_at,
			latency_ms=excluded.latency_ms,
			timed_out=excluded.timed_out,
			send_error=excluded.send_error,
			decode_error=excluded.decode_error,
			decoded=excluded.decoded
	`

	selectCommandEventsSQL = `SELECT session_id, seq, command, response, sent_at, received_at, latency_ms, timed_out, send_error, decode_error, decoded FROM command_events`
)

// SaveBatch upserts events in one transaction. Rows are keyed by
// (session, seq), so saving an event again records a reply that arrived
// after the previous save.
func (r *EventSQLite) SaveBatch(ctx context.Context, events []models.CommandEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, upsertCommandEventSQL)
	if err != nil {
		return fmt.Errorf("prepare event upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(e)...); err != nil {
			return fmt.Errorf("upsert event %s/%d: %w", e.SessionID, e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event batch: %w", err)
	}
	return nil
}

func eventArgs(e models.CommandEvent) []any {
	var response, receivedAt, latency, decoded any
	if e.Response != nil {
		response = *e.Response
	}
	if e.ReceivedAt != nil {
		receivedAt = e.ReceivedAt.UTC()
	}
	if e.LatencyMS != nil {
		latency = *e.LatencyMS
	}
	if len(e.Decoded) > 0 {
		decoded = string(e.Decoded)
	}
	return []any{
		e.SessionID,
		e.Seq,
		e.Command,
		response,
		e.SentAt.UTC(),
		receivedAt,
		latency,
		e.TimedOut,
		nullIfEmpty(e.SendError),
		nullIfEmpty(e.DecodeError),
		decoded,
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching f, ordered by send time then sequence.
func (r *EventSQLite) List(ctx context.Context, f EventFilter) ([]models.CommandEvent, error) {
	var (
		conds []string
		args  []any
	)

	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "sent_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "sent_at <= ?")
		args = append(args, f.To.UTC())
	}
	if cmd := strings.TrimSpace(f.Command); cmd != "" {
		conds = append(conds, "command LIKE ?")
		args = append(args, "%"+cmd+"%")
	}
	if f.TimedOutOnly {
		conds = append(conds, "timed_out = ?")
		args = append(args, true)
	}

	q := selectCommandEventsSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY sent_at ASC, seq ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.CommandEvent, 0, 64)
	for rows.Next() {
		var (
			ev          models.CommandEvent
			response    sql.NullString
			receivedAt  sql.NullTime
			latency     sql.NullFloat64
			sendErr     sql.NullString
			decodeErr   sql.NullString
			decodedJSON sql.NullString
		)
		if err := rows.Scan(&ev.SessionID, &ev.Seq, &ev.Command, &response, &ev.SentAt,
			&receivedAt, &latency, &ev.TimedOut, &sendErr, &decodeErr, &decodedJSON); err != nil {
			return nil, err
		}
		ev.SentAt = ev.SentAt.UTC()
		if response.Valid {
			s := response.String
			ev.Response = &s
		}
		if receivedAt.Valid {
			t := receivedAt.Time.UTC()
			ev.ReceivedAt = &t
		}
		if latency.Valid {
			v := latency.Float64
			ev.LatencyMS = &v
		}
		ev.SendError = sendErr.String
		ev.DecodeError = decodeErr.String
		if decodedJSON.Valid && decodedJSON.String != "" {
			ev.Decoded = []byte(decodedJSON.String)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

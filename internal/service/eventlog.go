package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"drone_commander/internal/decoder"
	"drone_commander/internal/eventlog"
	"drone_commander/internal/logger"
	"drone_commander/internal/models"
	"drone_commander/internal/repository"
)

// LiveLog is the in-memory log of the running correlator.
type LiveLog interface {
	Session() string
	EventLog() *eventlog.Log
}

const finalFlushTimeout = 5 * time.Second

type EventLogService struct {
	eventRepo repository.EventRepo
	live      LiveLog
	log       *logger.Logger

	mu     sync.Mutex
	cursor int // first event id not yet known to be final in the DB
}

func NewEventLogService(eventRepo repository.EventRepo, live LiveLog, log *logger.Logger) *EventLogService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventLogService{eventRepo: eventRepo, live: live, log: log}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errNoLiveLog        = errors.New("no live command log attached")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.EventFilter{}, errInvalidTimeRange
	}

	limit := f.Limit
	if limit < 0 {
		limit = 0
	}
	return repository.EventFilter{
		SessionID:    strings.TrimSpace(f.Session),
		From:         from,
		To:           to,
		Command:      strings.TrimSpace(f.Command),
		TimedOutOnly: f.TimedOutOnly,
		Limit:        limit,
	}, nil
}

// List returns persisted events from every session.
func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.CommandEvent, error) {
	rf, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, rf)
}

// ExportPersisted renders stored events in the audit text format. Decoded
// values are rebuilt from the stored reply.
func (s *EventLogService) ExportPersisted(ctx context.Context, f LogFilter) (string, error) {
	events, err := s.List(ctx, f)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, ce := range events {
		b.WriteString(fromCommandEvent(ce).String())
	}
	return b.String(), nil
}

// Live returns the current session's events, including unflushed ones.
func (s *EventLogService) Live() []models.CommandEvent {
	if s.live == nil {
		return nil
	}
	return toCommandEvents(s.live.Session(), s.live.EventLog().Snapshot())
}

// Export renders the current session in the audit text format.
func (s *EventLogService) Export() string {
	if s.live == nil {
		return ""
	}
	return s.live.EventLog().Export()
}

// ExportFile writes Export to path.
func (s *EventLogService) ExportFile(path string) error {
	if s.live == nil {
		return errNoLiveLog
	}
	return s.live.EventLog().SaveFile(path)
}

// Flush persists every event that may have changed since the previous
// flush and returns how many rows were written. Only the newest event can
// still change, through a late reply, so it is written again next time.
func (s *EventLogService) Flush(ctx context.Context) (int, error) {
	if s.live == nil {
		return 0, errNoLiveLog
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.live.EventLog().Since(s.cursor)
	if len(events) == 0 {
		return 0, nil
	}
	if err := s.eventRepo.SaveBatch(ctx, toCommandEvents(s.live.Session(), events)); err != nil {
		return 0, err
	}
	s.cursor = events[len(events)-1].ID
	return len(events), nil
}

// RunFlusher flushes every interval until ctx is canceled, then once more.
func (s *EventLogService) RunFlusher(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			if _, err := s.Flush(final); err != nil {
				s.log.Errorw("final_flush_failed", "err", err)
			}
			cancel()
			return
		case <-t.C:
			n, err := s.Flush(ctx)
			if err != nil {
				s.log.Warnw("event_flush_failed", "err", err)
				continue
			}
			if n > 0 {
				s.log.Debugw("events_flushed", "count", n)
			}
		}
	}
}

func toCommandEvents(session string, events []eventlog.Event) []models.CommandEvent {
	out := make([]models.CommandEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, toCommandEvent(session, ev))
	}
	return out
}

func toCommandEvent(session string, ev eventlog.Event) models.CommandEvent {
	ce := models.CommandEvent{
		SessionID:   session,
		Seq:         ev.ID,
		Command:     ev.Command,
		SentAt:      ev.SentAt.UTC(),
		TimedOut:    ev.TimedOut,
		SendError:   ev.SendError,
		DecodeError: ev.DecodeError,
	}
	if ev.HasResponse {
		resp := ev.Response
		ce.Response = &resp
		recv := ev.ReceivedAt.UTC()
		ce.ReceivedAt = &recv
		ms := float64(ev.Latency) / float64(time.Millisecond)
		ce.LatencyMS = &ms

		if ev.DecodeError == "" && ev.Value.Kind != decoder.KindRaw {
			if b, err := json.Marshal(ev.Value.Interface()); err == nil {
				ce.Decoded = b
			}
		}
	}
	return ce
}

func fromCommandEvent(ce models.CommandEvent) eventlog.Event {
	ev := eventlog.Event{
		ID:          ce.Seq,
		Command:     ce.Command,
		SentAt:      ce.SentAt,
		TimedOut:    ce.TimedOut,
		SendFailed:  ce.SendError != "",
		SendError:   ce.SendError,
		DecodeError: ce.DecodeError,
	}
	if ce.Response != nil {
		ev.HasResponse = true
		ev.Response = *ce.Response
		if ce.ReceivedAt != nil {
			ev.ReceivedAt = *ce.ReceivedAt
		}
		if ce.LatencyMS != nil {
			ev.Latency = time.Duration(*ce.LatencyMS * float64(time.Millisecond))
		}
		if v, err := decoder.Decode(ce.Command, ev.Response); err == nil {
			ev.Value = v
		}
	}
	return ev
}

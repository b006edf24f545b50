// Package eventlog keeps the ordered, append-only audit trail of drone commands.
//
// Events are never removed or reordered and an event's ID is its index in
// the log. After creation an event changes only through three transitions:
// a reply is attached, the timeout flag is set, or the send is marked failed.
package eventlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"drone_commander/internal/decoder"
)

var (
	ErrUnknownEvent    = errors.New("unknown event")
	ErrNoOutstanding   = errors.New("no outstanding event")
	ErrAlreadyAnswered = errors.New("event already has a response")
	ErrAlreadyTimedOut = errors.New("event already timed out")
	ErrNotSent         = errors.New("event was never sent")
	ErrAlreadyResolved = errors.New("event already resolved")
)

// Log is safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	events []Event
	now    func() time.Time
}

// Option customizes a Log.
type Option func(*Log)

// WithClock replaces time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a new command and returns a copy of the created event.
func (l *Log) Append(command string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		ID:      len(l.events),
		Command: command,
		SentAt:  l.now(),
	}
	l.events = append(l.events, ev)
	return ev
}

// AttachResponse attaches payload to the most recent event if it is still
// awaiting a reply.
func (l *Log) AttachResponse(payload string) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) == 0 {
		return Event{}, ErrNoOutstanding
	}
	last := &l.events[len(l.events)-1]
	if last.Resolved() {
		return Event{}, ErrNoOutstanding
	}
	l.attach(last, payload)
	return *last, nil
}

// AttachResponseTo attaches payload to the event with the given id. Unlike
// AttachResponse it accepts an event whose timeout already fired, which is
// how late replies are kept.
func (l *Log) AttachResponseTo(id int, payload string) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, err := l.lookup(id)
	if err != nil {
		return Event{}, err
	}
	switch {
	case ev.HasResponse:
		return *ev, ErrAlreadyAnswered
	case ev.SendFailed:
		return *ev, ErrNotSent
	}
	l.attach(ev, payload)
	return *ev, nil
}

func (l *Log) attach(ev *Event, payload string) {
	ev.Response = payload
	ev.HasResponse = true
	ev.ReceivedAt = l.now()
	ev.Latency = ev.ReceivedAt.Sub(ev.SentAt)

	v, err := decoder.Decode(ev.Command, payload)
	ev.Value = v
	if err != nil {
		ev.DecodeError = err.Error()
	}
}

// MarkTimeout flags the most recent event as timed out if it is still
// awaiting a reply.
func (l *Log) MarkTimeout() (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) == 0 {
		return Event{}, ErrNoOutstanding
	}
	last := &l.events[len(l.events)-1]
	if last.Resolved() {
		return Event{}, ErrNoOutstanding
	}
	last.TimedOut = true
	return *last, nil
}

// MarkTimeoutOf flags the event with the given id as timed out.
func (l *Log) MarkTimeoutOf(id int) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, err := l.lookup(id)
	if err != nil {
		return Event{}, err
	}
	switch {
	case ev.TimedOut:
		return *ev, ErrAlreadyTimedOut
	case ev.HasResponse:
		return *ev, ErrAlreadyAnswered
	case ev.SendFailed:
		return *ev, ErrNotSent
	}
	ev.TimedOut = true
	return *ev, nil
}

// MarkSendFailed records that the command for id never reached the transport.
func (l *Log) MarkSendFailed(id int, cause error) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, err := l.lookup(id)
	if err != nil {
		return Event{}, err
	}
	if ev.Resolved() {
		return *ev, ErrAlreadyResolved
	}
	ev.SendFailed = true
	if cause != nil {
		ev.SendError = cause.Error()
	}
	return *ev, nil
}

func (l *Log) lookup(id int) (*Event, error) {
	if id < 0 || id >= len(l.events) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, id)
	}
	return &l.events[id], nil
}

// Get returns a copy of the event with the given id.
func (l *Log) Get(id int) (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id < 0 || id >= len(l.events) {
		return Event{}, false
	}
	return l.events[id], true
}

// Last returns a copy of the most recent event.
func (l *Log) Last() (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.events) == 0 {
		return Event{}, false
	}
	return l.events[len(l.events)-1], true
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Snapshot returns copies of all events in id order.
func (l *Log) Snapshot() []Event {
	return l.Since(0)
}

// Since returns copies of the events with ID >= id.
func (l *Log) Since(id int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id < 0 {
		id = 0
	}
	if id >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-id)
	copy(out, l.events[id:])
	return out
}

// Export renders every event as text, one block per event in log order.
func (l *Log) Export() string {
	var b strings.Builder
	for _, ev := range l.Snapshot() {
		b.WriteString(ev.String())
	}
	return b.String()
}

// WriteTo streams the export to w.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, ev := range l.Snapshot() {
		n, err := io.WriteString(w, ev.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SaveFile writes the export to path, replacing any existing file.
func (l *Log) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log file %q: %w", path, err)
	}
	if _, err := l.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write log file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file %q: %w", path, err)
	}
	return nil
}

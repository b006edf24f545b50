// Package correlator pairs commands sent to the drone with the replies that
// come back on the same datagram channel.
//
// The protocol has no request identifiers, so a reply can only be matched by
// recency. The Correlator therefore keeps at most one command outstanding:
// concurrent SendCommand calls are queued and run one at a time in arrival
// order, and a new command is written only after the previous one got a
// reply, timed out or failed to send.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"drone_commander/internal/eventlog"
	"drone_commander/internal/logger"
	"drone_commander/internal/transport"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is used when SendCommand gets a non-positive timeout.
	DefaultTimeout = 15 * time.Second

	// HandshakeCommand switches the drone into command mode.
	HandshakeCommand = "command"

	minReceiveBackoff = 50 * time.Millisecond
	maxReceiveBackoff = time.Second
)

// pending is the slot handed from the dispatcher to the listener for the
// command currently awaiting a reply.
type pending struct {
	id   int
	done chan struct{}
}

type request struct {
	ctx     context.Context
	text    string
	timeout time.Duration
	reply   chan result
}

type result struct {
	ev  eventlog.Event
	err error
}

// Correlator owns the event log and the listener task draining the transport.
type Correlator struct {
	transport transport.Transport
	events    *eventlog.Log
	log       *logger.Logger
	timeout   time.Duration
	policy    LatePolicy
	session   string

	mu      sync.Mutex
	current *pending
	closed  bool

	requests  chan request
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Correlator.
type Option func(*Correlator)

func WithLogger(l *logger.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimeout sets the default reply window.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLatePolicy(p LatePolicy) Option {
	return func(c *Correlator) {
		if p != "" {
			c.policy = p
		}
	}
}

// WithEventLog records into an existing log instead of a fresh one.
func WithEventLog(l *eventlog.Log) Option {
	return func(c *Correlator) {
		if l != nil {
			c.events = l
		}
	}
}

// New starts the listener and dispatcher goroutines. Close stops them and
// closes t.
func New(t transport.Transport, opts ...Option) *Correlator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Correlator{
		transport: t,
		events:    eventlog.New(),
		log:       logger.Nop(),
		timeout:   DefaultTimeout,
		policy:    LateAttach,
		session:   uuid.NewString(),
		requests:  make(chan request),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.wg.Add(2)
	go c.listen()
	go c.dispatch()
	return c
}

// Session identifies this correlator run; persisted events are keyed by it.
func (c *Correlator) Session() string { return c.session }

// EventLog exposes the underlying log for read access.
func (c *Correlator) EventLog() *eventlog.Log { return c.events }

// Log returns a snapshot of every event in id order.
func (c *Correlator) Log() []eventlog.Event { return c.events.Snapshot() }

// ExportLog renders the log as text, one block per event.
func (c *Correlator) ExportLog() string { return c.events.Export() }

// SendCommand writes text to the drone and waits for its reply.
//
// A timeout is not an error: the returned event has TimedOut set and
// Err(ev) reports ErrTimeout. A transport failure returns a *SendError.
// A non-positive timeout selects the configured default.
func (c *Correlator) SendCommand(ctx context.Context, text string, timeout time.Duration) (eventlog.Event, error) {
	if strings.TrimSpace(text) == "" {
		return eventlog.Event{}, ErrEmptyCommand
	}

	req := request{ctx: ctx, text: text, timeout: timeout, reply: make(chan result, 1)}
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return eventlog.Event{}, ctx.Err()
	case <-c.ctx.Done():
		return eventlog.Event{}, ErrClosed
	}

	res := <-req.reply
	return res.ev, res.err
}

// Handshake sends the command-mode switch and reports whether the drone
// acknowledged it.
func (c *Correlator) Handshake(ctx context.Context) (eventlog.Event, error) {
	ev, err := c.SendCommand(ctx, HandshakeCommand, 0)
	if err != nil {
		return ev, err
	}
	if err := Err(ev); err != nil {
		return ev, fmt.Errorf("handshake: %w", err)
	}
	if !IsOK(ev.Response) {
		return ev, fmt.Errorf("handshake: unexpected reply %q", ev.Response)
	}
	return ev, nil
}

// IsOK reports whether a reply is the drone's acknowledgement. Case and
// surrounding whitespace are ignored.
func IsOK(reply string) bool {
	return strings.EqualFold(strings.TrimSpace(reply), "ok")
}

// Wait pauses between commands. Nothing is logged.
func (c *Correlator) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Close stops the listener and dispatcher and closes the transport. It is
// safe to call more than once.
func (c *Correlator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		c.closeErr = c.transport.Close()
		c.wg.Wait()
	})
	return c.closeErr
}

func (c *Correlator) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.requests:
			ev, err := c.execute(req)
			req.reply <- result{ev: ev, err: err}
		}
	}
}

func (c *Correlator) execute(req request) (eventlog.Event, error) {
	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if err := req.ctx.Err(); err != nil {
		return eventlog.Event{}, err
	}
	start := time.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return eventlog.Event{}, ErrClosed
	}
	ev := c.events.Append(req.text)
	p := &pending{id: ev.ID, done: make(chan struct{})}
	c.current = p
	c.mu.Unlock()

	c.log.Debugw("command_sent", "event_id", ev.ID, "command", req.text)

	if err := c.transport.Send(req.ctx, []byte(req.text)); err != nil {
		return c.failSend(p, req.text, err)
	}

	timer := time.NewTimer(max(timeout-time.Since(start), 0))
	defer timer.Stop()

	select {
	case <-p.done:
		got, _ := c.events.Get(p.id)
		c.log.Debugw("reply_received", "event_id", got.ID, "command", got.Command,
			"response", got.Response, "latency", got.Latency)
		return got, nil
	case <-timer.C:
		got := c.expire(p)
		if got.TimedOut && !got.HasResponse {
			c.log.Warnw("command_timed_out", "event_id", got.ID, "command", got.Command, "timeout", timeout)
		}
		return got, nil
	case <-req.ctx.Done():
		got := c.expire(p)
		return got, fmt.Errorf("wait for reply to %q: %w", req.text, req.ctx.Err())
	case <-c.ctx.Done():
		got := c.expire(p)
		return got, ErrClosed
	}
}

func (c *Correlator) failSend(p *pending, text string, cause error) (eventlog.Event, error) {
	c.mu.Lock()
	if c.current == p {
		c.current = nil
	}
	got, err := c.events.MarkSendFailed(p.id, cause)
	c.mu.Unlock()
	if err != nil {
		got, _ = c.events.Get(p.id)
	}

	c.log.Errorw("command_send_failed", "event_id", p.id, "command", text, "err", cause)
	return got, &SendError{Command: text, Err: cause}
}

// expire flags p as timed out unless the listener answered it first.
func (c *Correlator) expire(p *pending) eventlog.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-p.done:
		got, _ := c.events.Get(p.id)
		return got
	default:
	}

	got, err := c.events.MarkTimeoutOf(p.id)
	if err != nil {
		got, _ = c.events.Get(p.id)
	}
	if c.policy == LateDrop && c.current == p {
		c.current = nil
	}
	return got
}

// listen drains the transport until Close. Transport errors are logged and
// never end the loop.
func (c *Correlator) listen() {
	defer c.wg.Done()

	failures := 0
	for {
		payload, err := c.transport.Receive(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			backoff := receiveBackoff(failures)
			c.log.Warnw("transport_receive_failed", "err", err, "consecutive", failures, "retry_in", backoff)
			if !c.sleep(backoff) {
				return
			}
			continue
		}
		failures = 0
		if len(payload) == 0 {
			continue
		}
		c.deliver(string(payload))
	}
}

// deliver attaches a reply to the outstanding command, if any.
func (c *Correlator) deliver(payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	p := c.current
	if p == nil {
		c.log.Infow("reply_discarded", "reason", "no outstanding command", "response", payload)
		return
	}

	ev, err := c.events.AttachResponseTo(p.id, payload)
	if err != nil {
		if errors.Is(err, eventlog.ErrAlreadyAnswered) {
			c.log.Infow("reply_discarded", "event_id", p.id, "reason", "already answered", "response", payload)
		} else {
			c.log.Warnw("reply_discarded", "event_id", p.id, "err", err, "response", payload)
		}
		return
	}
	close(p.done)

	if ev.TimedOut {
		c.log.Warnw("late_reply_attached", "event_id", ev.ID, "command", ev.Command, "response", payload)
	}
	if ev.DecodeError != "" {
		c.log.Warnw("reply_decode_failed", "event_id", ev.ID, "command", ev.Command, "err", ev.DecodeError)
	}
}

func (c *Correlator) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func receiveBackoff(failures int) time.Duration {
	d := minReceiveBackoff
	for i := 1; i < failures && d < maxReceiveBackoff; i++ {
		d *= 2
	}
	return min(d, maxReceiveBackoff)
}

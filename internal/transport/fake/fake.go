// Package fake provides a scripted in-memory Transport for tests.
package fake

import (
	"context"
	"sync"

	"drone_commander/internal/transport"
)

// Responder decides what, if anything, the fake drone answers to a command.
// Returning ok=false sends no reply.
type Responder func(command string) (reply string, ok bool)

// Transport records sent commands and delivers queued replies.
type Transport struct {
	mu        sync.Mutex
	sent      []string
	sendErr   error
	recvErrs  []error
	responder Responder
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	onSend    func(command string)
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Respond installs a responder invoked synchronously on every successful send.
func (t *Transport) Respond(r Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = r
}

// OnSend installs a hook invoked with each command after it is recorded.
func (t *Transport) OnSend(fn func(command string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSend = fn
}

// FailSends makes every following Send return err. A nil err restores sends.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// FailReceives queues errors returned by the next Receive calls, in order.
func (t *Transport) FailReceives(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvErrs = append(t.recvErrs, errs...)
}

// Deliver queues an inbound datagram as if the drone had sent it.
func (t *Transport) Deliver(payload string) {
	select {
	case t.inbox <- []byte(payload):
	case <-t.closed:
	}
}

// Sent returns the commands written so far, in order.
func (t *Transport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *Transport) Send(ctx context.Context, payload []byte) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.sendErr != nil {
		err := t.sendErr
		t.mu.Unlock()
		return err
	}
	cmd := string(payload)
	t.sent = append(t.sent, cmd)
	responder, onSend := t.responder, t.onSend
	t.mu.Unlock()

	if onSend != nil {
		onSend(cmd)
	}
	if responder != nil {
		if reply, ok := responder(cmd); ok {
			t.Deliver(reply)
		}
	}
	return nil
}

func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if len(t.recvErrs) > 0 {
		err := t.recvErrs[0]
		t.recvErrs = t.recvErrs[1:]
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()

	select {
	case <-t.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-t.inbox:
		return p, nil
	}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// Package transport carries command datagrams to the drone and replies back.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport closed")

// Transport sends datagrams to a fixed peer and receives the peer's replies.
//
// Receive blocks until a datagram arrives, ctx is done or an internal poll
// interval elapses. A nil payload with a nil error means nothing arrived.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

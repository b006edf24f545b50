package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

const (
	defaultMaxDatagram  = 1024
	defaultPollInterval = 250 * time.Millisecond
)

// UDPConfig describes the local socket and the drone's address.
type UDPConfig struct {
	PeerAddr     string        // e.g. "192.168.10.1:8889"
	LocalPort    int           // 0 picks an ephemeral port
	MaxDatagram  int           // read buffer size
	PollInterval time.Duration // upper bound on a single blocking read
}

// UDP is a Transport over a bound UDP socket.
type UDP struct {
	conn         *net.UDPConn
	peer         *net.UDPAddr
	buf          []byte
	pollInterval time.Duration
}

var _ Transport = (*UDP)(nil)

// DialUDP binds the local port and resolves the peer address.
func DialUDP(cfg UDPConfig) (*UDP, error) {
	peer, err := net.ResolveUDPAddr("udp", cfg.PeerAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve drone address %q: %w", cfg.PeerAddr, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("bind local port %d: %w", cfg.LocalPort, err)
	}

	size := cfg.MaxDatagram
	if size <= 0 {
		size = defaultMaxDatagram
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &UDP{
		conn:         conn,
		peer:         peer,
		buf:          make([]byte, size),
		pollInterval: poll,
	}, nil
}

// LocalAddr returns the bound local address.
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *UDP) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = u.conn.SetWriteDeadline(dl)
	} else {
		_ = u.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := u.conn.WriteToUDP(payload, u.peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("write to %s: %w", u.peer, err)
	}
	return nil
}

// Receive is not safe for concurrent use; one listener owns the read side.
func (u *UDP) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(u.pollInterval)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = u.conn.SetReadDeadline(deadline)

	n, _, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read from socket: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

func (u *UDP) Close() error {
	if err := u.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

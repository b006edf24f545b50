package correlator

import (
	"errors"
	"fmt"

	"drone_commander/internal/eventlog"
)

var (
	// ErrTimeout classifies an event whose reply did not arrive in time.
	ErrTimeout = errors.New("no response before deadline")
	// ErrTransportSend is wrapped by every *SendError.
	ErrTransportSend = errors.New("transport send failed")
	ErrClosed        = errors.New("correlator closed")
	ErrEmptyCommand  = errors.New("empty command")
)

// SendError reports a command that never reached the transport.
type SendError struct {
	Command string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %q: %v", e.Command, e.Err)
}

func (e *SendError) Unwrap() []error { return []error{ErrTransportSend, e.Err} }

// Err classifies the outcome of a resolved event: a *SendError, ErrTimeout,
// or nil when a reply was recorded. Decode failures are reported separately
// on the event because the raw reply is still valid audit data.
//
// The event keeps only the text of a send failure, so the *SendError built
// here matches ErrTransportSend but not the original cause. Use the error
// returned by SendCommand to match the cause itself.
func Err(ev eventlog.Event) error {
	switch {
	case ev.SendFailed:
		return &SendError{Command: ev.Command, Err: loggedCause(ev.SendError)}
	case ev.TimedOut && !ev.HasResponse:
		return ErrTimeout
	default:
		return nil
	}
}

// loggedCause is a send failure restored from its logged text.
type loggedCause string

func (e loggedCause) Error() string { return string(e) }

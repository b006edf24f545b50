package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"drone_commander/internal/correlator"
	"drone_commander/internal/eventlog"
)

// Commander is the part of the correlator the services drive.
type Commander interface {
	SendCommand(ctx context.Context, text string, timeout time.Duration) (eventlog.Event, error)
}

var (
	ErrCommandRejected = errors.New("command rejected by drone")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	minMoveCM   = 20
	maxMoveCM   = 500
	minRotate   = 1
	maxRotate   = 360
	minSpeedCMS = 10
	maxSpeedCMS = 100
)

var moveDirections = map[string]struct{}{
	"up": {}, "down": {}, "left": {}, "right": {}, "forward": {}, "back": {},
}

var rotateDirections = map[string]struct{}{"cw": {}, "ccw": {}}

// queryNames are the read commands the drone answers with a value.
var queryNames = map[string]struct{}{
	"battery": {}, "speed": {}, "time": {}, "height": {}, "temp": {},
	"attitude": {}, "baro": {}, "acceleration": {}, "tof": {}, "wifi": {},
}

// DroneService turns flight operations into drone commands.
type DroneService struct {
	cmd Commander
}

func NewDroneService(cmd Commander) *DroneService {
	return &DroneService{cmd: cmd}
}

// Raw sends text verbatim and returns the event whatever the outcome.
func (s *DroneService) Raw(ctx context.Context, text string) (eventlog.Event, error) {
	ev, err := s.cmd.SendCommand(ctx, text, 0)
	if err != nil {
		return ev, err
	}
	return ev, correlator.Err(ev)
}

// Command switches the drone into SDK mode.
func (s *DroneService) Command(ctx context.Context) (eventlog.Event, error) {
	return s.ack(ctx, correlator.HandshakeCommand)
}

func (s *DroneService) Takeoff(ctx context.Context) (eventlog.Event, error) {
	return s.ack(ctx, "takeoff")
}

func (s *DroneService) Land(ctx context.Context) (eventlog.Event, error) {
	return s.ack(ctx, "land")
}

// Emergency stops all motors immediately.
func (s *DroneService) Emergency(ctx context.Context) (eventlog.Event, error) {
	return s.ack(ctx, "emergency")
}

func (s *DroneService) StreamOn(ctx context.Context) (eventlog.Event, error) {
	return s.ack(ctx, "streamon")
}

func (s *DroneService) StreamOff(ctx context.Context) (eventlog.Event, error) {
	return s.ack(ctx, "streamoff")
}

// Move flies distanceCM in direction.
func (s *DroneService) Move(ctx context.Context, p MoveParams) (eventlog.Event, error) {
	dir := strings.ToLower(strings.TrimSpace(p.Direction))
	if _, ok := moveDirections[dir]; !ok {
		return eventlog.Event{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidArgument, p.Direction)
	}
	if p.DistanceCM < minMoveCM || p.DistanceCM > maxMoveCM {
		return eventlog.Event{}, fmt.Errorf("%w: distance %d cm outside [%d, %d]",
			ErrInvalidArgument, p.DistanceCM, minMoveCM, maxMoveCM)
	}
	return s.ack(ctx, fmt.Sprintf("%s %d", dir, p.DistanceCM))
}

// Rotate turns the drone clockwise (cw) or counter-clockwise (ccw).
func (s *DroneService) Rotate(ctx context.Context, p RotateParams) (eventlog.Event, error) {
	dir := strings.ToLower(strings.TrimSpace(p.Direction))
	if _, ok := rotateDirections[dir]; !ok {
		return eventlog.Event{}, fmt.Errorf("%w: rotation must be cw or ccw, got %q", ErrInvalidArgument, p.Direction)
	}
	if p.Degrees < minRotate || p.Degrees > maxRotate {
		return eventlog.Event{}, fmt.Errorf("%w: %d degrees outside [%d, %d]",
			ErrInvalidArgument, p.Degrees, minRotate, maxRotate)
	}
	return s.ack(ctx, fmt.Sprintf("%s %d", dir, p.Degrees))
}

func (s *DroneService) SetSpeed(ctx context.Context, cms int) (eventlog.Event, error) {
	if cms < minSpeedCMS || cms > maxSpeedCMS {
		return eventlog.Event{}, fmt.Errorf("%w: speed %d cm/s outside [%d, %d]",
			ErrInvalidArgument, cms, minSpeedCMS, maxSpeedCMS)
	}
	return s.ack(ctx, fmt.Sprintf("speed %d", cms))
}

// Query asks the drone for a value, e.g. Query(ctx, "battery") sends
// "battery?". The decoded value is on the returned event.
func (s *DroneService) Query(ctx context.Context, name string) (eventlog.Event, error) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "?"))
	if _, ok := queryNames[name]; !ok {
		return eventlog.Event{}, fmt.Errorf("%w: unknown query %q", ErrInvalidArgument, name)
	}
	ev, err := s.Raw(ctx, name+"?")
	if err != nil {
		return ev, err
	}
	if isErrorReply(ev.Response) {
		return ev, fmt.Errorf("%w: %q answered %q", ErrCommandRejected, ev.Command, ev.Response)
	}
	return ev, nil
}

// ack sends a control command that the drone acknowledges with "ok".
func (s *DroneService) ack(ctx context.Context, text string) (eventlog.Event, error) {
	ev, err := s.Raw(ctx, text)
	if err != nil {
		return ev, err
	}
	if !correlator.IsOK(ev.Response) {
		return ev, fmt.Errorf("%w: %q answered %q", ErrCommandRejected, text, ev.Response)
	}
	return ev, nil
}

func isErrorReply(resp string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp)), "error")
}

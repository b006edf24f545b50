package service

import "time"

type MoveParams struct {
	Direction  string // up | down | left | right | forward | back
	DistanceCM int
}

type RotateParams struct {
	Direction string // cw | ccw
	Degrees   int
}

// LogFilter supports history filtering of persisted command events.
type LogFilter struct {
	From         time.Time // inclusive; zero means no lower bound
	To           time.Time // inclusive; zero means no upper bound
	Command      string    // substring of the command text
	TimedOutOnly bool
	Session      string
	Limit        int
}

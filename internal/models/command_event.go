package models

import (
	"encoding/json"
	"time"
)

// CommandEvent is the persisted form of one correlated command.
type CommandEvent struct {
	SessionID   string          `json:"session_id"`
	Seq         int             `json:"seq"` // event id within the session
	Command     string          `json:"command"`
	Response    *string         `json:"response,omitempty"` // nil when no reply arrived
	SentAt      time.Time       `json:"sent_at"`
	ReceivedAt  *time.Time      `json:"received_at,omitempty"`
	LatencyMS   *float64        `json:"latency_ms,omitempty"`
	TimedOut    bool            `json:"timed_out"`
	SendError   string          `json:"send_error,omitempty"`
	DecodeError string          `json:"decode_error,omitempty"`
	Decoded     json.RawMessage `json:"decoded,omitempty"`
}

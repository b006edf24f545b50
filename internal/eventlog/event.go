package eventlog

import (
	"strconv"
	"strings"
	"time"

	"drone_commander/internal/decoder"
)

// timeLayout matches the audit export format used by earlier tooling.
const timeLayout = "2006-01-02 15:04:05.000000"

// Event is one command sent to the drone and its outcome.
type Event struct {
	ID          int
	Command     string
	Response    string
	HasResponse bool
	SentAt      time.Time
	ReceivedAt  time.Time
	Latency     time.Duration
	TimedOut    bool
	SendFailed  bool
	SendError   string
	Value       decoder.Value
	DecodeError string
}

// Resolved reports whether the event got a reply, timed out or was never sent.
func (e Event) Resolved() bool {
	return e.HasResponse || e.TimedOut || e.SendFailed
}

// String renders the human-readable audit block for the event, terminated
// by a blank line.
func (e Event) String() string {
	var b strings.Builder

	b.WriteString("Event ID: " + strconv.Itoa(e.ID) + "\n")
	b.WriteString("Command: " + e.Command + "\n")

	if e.HasResponse {
		b.WriteString("Response: " + e.Response + "\n")
	} else {
		b.WriteString("Response: None\n")
	}

	b.WriteString("Command Sent Time: " + formatTime(e.SentAt) + "\n")
	b.WriteString("Response Received Time: " + formatTime(e.ReceivedAt) + "\n")

	if e.HasResponse {
		b.WriteString("Latency: " + strconv.FormatFloat(e.Latency.Seconds(), 'f', -1, 64) + "\n")
	} else {
		b.WriteString("Latency: N/A\n")
	}

	if e.TimedOut {
		b.WriteString("Time Out Occurred: Yes\n")
	} else {
		b.WriteString("Time Out Occurred: No\n")
	}

	if e.HasResponse && e.DecodeError == "" && e.Value.Kind != decoder.KindRaw {
		b.WriteString("Decoded: " + e.Value.String() + "\n")
	}
	if e.DecodeError != "" {
		b.WriteString("Decode Error: " + e.DecodeError + "\n")
	}
	if e.SendFailed {
		b.WriteString("Send Error: " + e.SendError + "\n")
	}

	b.WriteString("\n")
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(timeLayout)
}

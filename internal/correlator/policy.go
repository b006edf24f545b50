package correlator

import (
	"fmt"
	"strings"
)

// LatePolicy decides what happens to a reply that arrives after its
// command already timed out.
type LatePolicy string

const (
	// LateAttach keeps the reply on the timed out event; the event then has
	// both a response and the timeout flag.
	LateAttach LatePolicy = "attach"
	// LateDrop discards the reply.
	LateDrop LatePolicy = "drop"
)

// ParseLatePolicy accepts "attach" or "drop", case-insensitively. An empty
// string selects LateAttach.
func ParseLatePolicy(s string) (LatePolicy, error) {
	switch LatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LateAttach:
		return LateAttach, nil
	case LateDrop:
		return LateDrop, nil
	default:
		return "", fmt.Errorf("invalid late reply policy %q: must be attach or drop", s)
	}
}

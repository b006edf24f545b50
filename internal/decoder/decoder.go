// Package decoder turns raw drone replies into typed values.
//
// Replies carry no type tag, so the expected shape is chosen from the command
// that produced the reply. The mapping is a fixed table and must stay in step
// with the device protocol.
package decoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the shape of a decoded reply.
type Kind int

const (
	KindRaw Kind = iota
	KindInt
	KindFloat
	KindIntTriple
	KindFloatTriple
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindIntTriple:
		return "int_triple"
	case KindFloatTriple:
		return "float_triple"
	default:
		return "unknown"
	}
}

// Value is a decoded reply. Only the field matching Kind is meaningful.
//
// A temp? reply "low~high" decodes to KindInt holding the integer mean
// (low+high)/2. Odd sums truncate toward zero: "60~71" is 65 and "-3~-4" is -3.
type Value struct {
	Kind   Kind
	Raw    string
	Int    int
	Float  float64
	Ints   [3]int
	Floats [3]float64
}

// Interface returns the natural Go value for v: string, int, float64,
// [3]int or [3]float64.
func (v Value) Interface() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindIntTriple:
		return v.Ints
	case KindFloatTriple:
		return v.Floats
	default:
		return v.Raw
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindIntTriple:
		return fmt.Sprintf("(%d, %d, %d)", v.Ints[0], v.Ints[1], v.Ints[2])
	case KindFloatTriple:
		return fmt.Sprintf("(%g, %g, %g)", v.Floats[0], v.Floats[1], v.Floats[2])
	default:
		return fmt.Sprint(v.Interface())
	}
}

var (
	ErrMissingField = errors.New("missing field")
	ErrNotNumeric   = errors.New("no numeric value")
)

// DecodeError reports a reply that does not fit the shape its command expects.
type DecodeError struct {
	Command string
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode reply %q for %q: %v", e.Payload, e.Command, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Shape returns the kind of value the given command's reply decodes to.
func Shape(command string) Kind {
	switch {
	case strings.Contains(command, "attitude?"):
		return KindIntTriple
	case strings.Contains(command, "acceleration?"):
		return KindFloatTriple
	case strings.Contains(command, "temp?"):
		return KindInt
	case strings.Contains(command, "baro?"), strings.Contains(command, "speed?"):
		return KindFloat
	case !strings.Contains(command, "?"):
		return KindRaw
	default:
		return KindInt
	}
}

// Decode maps a command and its raw reply to a typed value.
func Decode(command, payload string) (Value, error) {
	v, err := decode(command, payload)
	if err != nil {
		return Value{Kind: KindRaw, Raw: payload}, &DecodeError{Command: command, Payload: payload, Err: err}
	}
	return v, nil
}

func decode(command, payload string) (Value, error) {
	switch {
	case strings.Contains(command, "attitude?"):
		ints, err := intFields(payload, ";", 3)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindIntTriple, Ints: [3]int{ints[0], ints[1], ints[2]}}, nil

	case strings.Contains(command, "acceleration?"):
		parts, err := fields(payload, ";", 3)
		if err != nil {
			return Value{}, err
		}
		var out [3]float64
		for i, p := range parts {
			if out[i], err = ParseFloat(p); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindFloatTriple, Floats: out}, nil

	case strings.Contains(command, "temp?"):
		ints, err := intFields(payload, "~", 2)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: (ints[0] + ints[1]) / 2}, nil

	case strings.Contains(command, "baro?"), strings.Contains(command, "speed?"):
		f, err := ParseFloat(payload)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, Float: f}, nil

	case !strings.Contains(command, "?"):
		return Value{Kind: KindRaw, Raw: payload}, nil

	default:
		n, err := ParseInt(payload)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindInt, Int: n}, nil
	}
}

// Numeric keeps only the digits, '-' and '.' of s.
func Numeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseInt extracts the numeric characters of s and parses them as an int.
func ParseInt(s string) (int, error) {
	num := Numeric(s)
	if num == "" {
		return 0, ErrNotNumeric
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("parse int %q: %w", num, err)
	}
	return n, nil
}

// ParseFloat extracts the numeric characters of s and parses them as a float64.
func ParseFloat(s string) (float64, error) {
	num := Numeric(s)
	if num == "" {
		return 0, ErrNotNumeric
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", num, err)
	}
	return f, nil
}

func fields(payload, sep string, want int) ([]string, error) {
	parts := strings.Split(payload, sep)
	if len(parts) < want {
		return nil, fmt.Errorf("%w: want %d %q-separated fields, got %d", ErrMissingField, want, sep, len(parts))
	}
	return parts[:want], nil
}

func intFields(payload, sep string, want int) ([]int, error) {
	parts, err := fields(payload, sep, want)
	if err != nil {
		return nil, err
	}
	out := make([]int, want)
	for i, p := range parts {
		if out[i], err = ParseInt(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

package decoder

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		payload string
		want    Value
	}{
		{
			name:    "attitude triple",
			command: "attitude?",
			payload: "10;-5;90;",
			want:    Value{Kind: KindIntTriple, Ints: [3]int{10, -5, 90}},
		},
		{
			name:    "attitude with labels",
			command: "attitude?",
			payload: "pitch:1;roll:-2;yaw:3;",
			want:    Value{Kind: KindIntTriple, Ints: [3]int{1, -2, 3}},
		},
		{
			name:    "acceleration triple",
			command: "acceleration?",
			payload: "-8.00;3.50;-999.25",
			want:    Value{Kind: KindFloatTriple, Floats: [3]float64{-8, 3.5, -999.25}},
		},
		{
			name:    "temperature mean",
			command: "temp?",
			payload: "60~70",
			want:    Value{Kind: KindInt, Int: 65},
		},
		{
			name:    "temperature mean truncates",
			command: "temp?",
			payload: "60~63C",
			want:    Value{Kind: KindInt, Int: 61},
		},
		{
			name:    "temperature mean negative truncates toward zero",
			command: "temp?",
			payload: "-3~-4",
			want:    Value{Kind: KindInt, Int: -3},
		},
		{
			name:    "speed float",
			command: "speed?",
			payload: "15",
			want:    Value{Kind: KindFloat, Float: 15.0},
		},
		{
			name:    "baro float",
			command: "baro?",
			payload: "123.45\r\n",
			want:    Value{Kind: KindFloat, Float: 123.45},
		},
		{
			name:    "ack command raw",
			command: "takeoff",
			payload: "ok",
			want:    Value{Kind: KindRaw, Raw: "ok"},
		},
		{
			name:    "set speed is not a query",
			command: "speed 50",
			payload: "ok",
			want:    Value{Kind: KindRaw, Raw: "ok"},
		},
		{
			name:    "battery numeric extraction",
			command: "battery?",
			payload: "abc42",
			want:    Value{Kind: KindInt, Int: 42},
		},
		{
			name:    "flight time with unit",
			command: "time?",
			payload: "17s",
			want:    Value{Kind: KindInt, Int: 17},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode(tc.command, tc.payload)
			if err != nil {
				t.Fatalf("Decode(%q, %q) unexpected error: %v", tc.command, tc.payload, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Decode(%q, %q) = %+v; want %+v", tc.command, tc.payload, got, tc.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command string
		payload string
		wantIs  error
	}{
		{name: "battery without digits", command: "battery?", payload: "error", wantIs: ErrNotNumeric},
		{name: "attitude missing fields", command: "attitude?", payload: "10;20", wantIs: ErrMissingField},
		{name: "temp missing separator", command: "temp?", payload: "60", wantIs: ErrMissingField},
		{name: "speed empty", command: "speed?", payload: "", wantIs: ErrNotNumeric},
		{name: "height with two dots", command: "height?", payload: "1.2.3", wantIs: nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := Decode(tc.command, tc.payload)
			if err == nil {
				t.Fatalf("expected error, got value %+v", v)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if de.Command != tc.command || de.Payload != tc.payload {
				t.Fatalf("unexpected error context: %+v", de)
			}
			if tc.wantIs != nil && !errors.Is(err, tc.wantIs) {
				t.Fatalf("expected errors.Is(%v), got %v", tc.wantIs, err)
			}
			// the raw reply is still available
			if v.Kind != KindRaw || v.Raw != tc.payload {
				t.Fatalf("expected raw fallback value, got %+v", v)
			}
		})
	}
}

func TestShape(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"attitude?":     KindIntTriple,
		"acceleration?": KindFloatTriple,
		"temp?":         KindInt,
		"baro?":         KindFloat,
		"speed?":        KindFloat,
		"land":          KindRaw,
		"cw 90":         KindRaw,
		"wifi?":         KindInt,
	}
	for cmd, want := range cases {
		if got := Shape(cmd); got != want {
			t.Fatalf("Shape(%q) = %v; want %v", cmd, got, want)
		}
	}
}

func TestNumeric(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"abc42", "42"},
		{"-12.5cm", "-12.5"},
		{"mm", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Numeric(c.in); got != c.want {
			t.Fatalf("Numeric(%q) = %q; want %q", c.in, got, c.want)
		}
	}
}

func TestValue_Interface(t *testing.T) {
	t.Parallel()

	if got := (Value{Kind: KindIntTriple, Ints: [3]int{1, 2, 3}}).String(); got != "(1, 2, 3)" {
		t.Fatalf("unexpected triple string %q", got)
	}
	if got := (Value{Kind: KindFloat, Float: 15}).Interface(); got != 15.0 {
		t.Fatalf("unexpected float interface %v", got)
	}
	if got := (Value{Kind: KindRaw, Raw: "ok"}).String(); got != "ok" {
		t.Fatalf("unexpected raw string %q", got)
	}
}

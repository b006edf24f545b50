package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"drone_commander/internal/models"
	"drone_commander/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type testEnvelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// dialStream serves wsConnect for s and connects to it with the given query.
func dialStream(t *testing.T, s *service.Service, rawQuery string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewHandler(s, nil).wsConnect)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = rawQuery

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) testEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env testEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func decodeEvent(t *testing.T, env testEnvelope) models.CommandEvent {
	t.Helper()
	if env.Type != envEvent {
		t.Fatalf("expected event envelope, got %q", env.Type)
	}
	var ev models.CommandEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := map[string]time.Duration{
		"/ws":                                defaultInterval,
		"/ws?interval=200ms":                 200 * time.Millisecond,
		"/ws?interval_ms=150":                150 * time.Millisecond,
		"/ws?interval=20s":                   defaultInterval,
		"/ws?interval_ms=20000":              defaultInterval,
		"/ws?interval=-1s":                   defaultInterval,
		"/ws?interval_ms=NaN":                defaultInterval,
		"/ws?interval=2s&interval_ms=150":    2 * time.Second,
		"/ws?interval=bogus&interval_ms=250": 250 * time.Millisecond,
	}
	for target, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		if got := h.parseInterval(c); got != want {
			t.Fatalf("%s: got %v, want %v", target, got, want)
		}
	}
}

func TestWebSocket_StateStream(t *testing.T) {
	mon := &mockMonitoring{state: models.DroneState{
		ID:           1,
		BatteryPct:   64,
		TemperatureC: 42,
		HeightCM:     120,
		Attitude:     [3]int{1, -2, 90},
	}}
	conn := dialStream(t, &service.Service{Monitoring: mon}, "interval_ms=20")

	for i := 0; i < 2; i++ {
		env := readEnvelope(t, conn)
		if env.Type != envState {
			t.Fatalf("message %d: expected state, got %+v", i, env)
		}
		var st models.DroneState
		if err := json.Unmarshal(env.Data, &st); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		if st.BatteryPct != 64 || st.HeightCM != 120 || st.Attitude != [3]int{1, -2, 90} {
			t.Fatalf("unexpected state: %+v", st)
		}
	}
}

func TestWebSocket_InitialStateErrorCloses(t *testing.T) {
	mon := &mockMonitoring{err: errors.New("boom")}
	conn := dialStream(t, &service.Service{Monitoring: mon}, "")

	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err == nil {
		t.Fatalf("expected read error (closed), got message: %s", string(raw))
	}
}

func TestWebSocket_LaterStateErrorIsReported(t *testing.T) {
	mon := &mockMonitoring{state: models.DroneState{ID: 1}}
	conn := dialStream(t, &service.Service{Monitoring: mon}, "interval_ms=20")

	if env := readEnvelope(t, conn); env.Type != envState {
		t.Fatalf("expected initial state, got %+v", env)
	}
	mon.setErr(errors.New("db down"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		env := readEnvelope(t, conn)
		if env.Type == envError {
			if env.Error != errGetState {
				t.Fatalf("unexpected error text %q", env.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no error envelope received")
		}
	}

	// the stream recovers once state reads work again
	mon.setErr(nil)
	for time.Now().Before(deadline.Add(time.Second)) {
		if env := readEnvelope(t, conn); env.Type == envState {
			return
		}
	}
	t.Fatalf("stream did not recover")
}

func TestWebSocket_StreamsNewEventsOnce(t *testing.T) {
	mon := &mockMonitoring{state: models.DroneState{ID: 1}}
	logs := &mockEventLog{live: []models.CommandEvent{
		{SessionID: "s1", Seq: 0, Command: "command", Response: strPtr("ok")},
	}}
	conn := dialStream(t, &service.Service{Monitoring: mon, EventLog: logs}, "interval_ms=20")

	if env := readEnvelope(t, conn); env.Type != envState {
		t.Fatalf("expected state first, got %q", env.Type)
	}
	if ev := decodeEvent(t, readEnvelope(t, conn)); ev.Seq != 0 || ev.Command != "command" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	logs.appendLive(models.CommandEvent{SessionID: "s1", Seq: 1, Command: "battery?", Response: strPtr("87")})

	// the first event must not be repeated; the next event envelope is seq 1
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn)
		if env.Type != envEvent {
			continue
		}
		if ev := decodeEvent(t, env); ev.Seq != 1 || ev.Command != "battery?" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		return
	}
	t.Fatalf("second event never streamed")
}

func TestWebSocket_EventsOnlySince(t *testing.T) {
	mon := &mockMonitoring{state: models.DroneState{ID: 1}}
	logs := &mockEventLog{live: []models.CommandEvent{
		{SessionID: "s1", Seq: 0, Command: "command"},
		{SessionID: "s1", Seq: 1, Command: "takeoff"},
		{SessionID: "s1", Seq: 2, Command: "land"},
	}}
	conn := dialStream(t, &service.Service{Monitoring: mon, EventLog: logs}, "state=false&since=1&interval_ms=20")

	if ev := decodeEvent(t, readEnvelope(t, conn)); ev.Seq != 1 {
		t.Fatalf("expected seq 1 first, got %+v", ev)
	}
	if ev := decodeEvent(t, readEnvelope(t, conn)); ev.Seq != 2 {
		t.Fatalf("expected seq 2 next, got %+v", ev)
	}

	// nothing else is pending and state is off, so the next read times out
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var env testEnvelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected message: %+v", env)
	}
}

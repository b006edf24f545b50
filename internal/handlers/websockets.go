package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000 // 10s in ms

	envState = "state"
	envEvent = "event"
	envError = "error"
)

// wsEnvelope carries a "state" snapshot, one command "event" or an "error".
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsStream is one client subscription.
type wsStream struct {
	h      *Handler
	conn   *websocket.Conn
	state  bool // send drone state snapshots
	events bool // send new command log entries
	next   int  // index of the next live event to send
}

// @Summary      Live drone state and command log
// @Description  Query: interval (e.g. 500ms) or interval_ms, state=false, events=false, since=<event id>.
// @Tags         stream
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := h.parseInterval(c)
	st := &wsStream{
		h:      h,
		state:  queryBool(c, "state", true),
		events: queryBool(c, "events", true) && h.services.EventLog != nil,
	}
	if n, err := strconv.Atoi(c.Query("since")); err == nil && n > 0 {
		st.next = n
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()
	st.conn = conn

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ctx := c.Request.Context()

	// a client that cannot get the first snapshot gets nothing
	if st.state {
		if err := st.writeState(ctx); err != nil {
			if h.log != nil {
				h.log.Infow("ws_write_failed_initial", "err", err)
			}
			return
		}
	}
	if err := st.writeEvents(); err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case <-ticker.C:
			if err := st.tick(ctx); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// tick sends the periodic update. A failed state read is reported to the
// client and the stream carries on; only write errors end it.
func (st *wsStream) tick(ctx context.Context) error {
	if st.state {
		if err := st.writeState(ctx); err != nil {
			if !isStateReadError(err) {
				return err
			}
			if err := st.write(wsEnvelope{Type: envError, Error: errGetState}); err != nil {
				return err
			}
		}
	}
	return st.writeEvents()
}

type stateReadError struct{ error }

func isStateReadError(err error) bool {
	var sre stateReadError
	return errors.As(err, &sre)
}

func (st *wsStream) writeState(ctx context.Context) error {
	s, err := st.h.services.Monitoring.GetState(ctx)
	if err != nil {
		if st.h.log != nil {
			st.h.log.Errorw("ws_get_state_failed", "err", err)
		}
		return stateReadError{err}
	}
	return st.write(wsEnvelope{Type: envState, Data: s})
}

// writeEvents sends the live log entries the client has not seen yet.
func (st *wsStream) writeEvents() error {
	if !st.events {
		return nil
	}
	events := st.h.services.EventLog.Live()
	if st.next > len(events) {
		// a client asking past the end waits for new events
		return nil
	}
	for _, ev := range events[st.next:] {
		if err := st.write(wsEnvelope{Type: envEvent, Data: ev}); err != nil {
			return err
		}
		st.next++
	}
	return nil
}

func (st *wsStream) write(env wsEnvelope) error {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteJSON(env)
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

func queryBool(c *gin.Context, key string, def bool) bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"drone_commander/internal/correlator"
	"drone_commander/internal/eventlog"
	"drone_commander/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"

	errGetState        = "failed to load state"
	errInvalidBodyPref = "invalid body: "
)

// eventResponse is the JSON view of one logged command.
type eventResponse struct {
	ID          int        `json:"id"`
	Command     string     `json:"command"`
	Response    *string    `json:"response"`
	SentAt      time.Time  `json:"sent_at"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	LatencyMS   *float64   `json:"latency_ms,omitempty"`
	TimedOut    bool       `json:"timed_out"`
	SendError   string     `json:"send_error,omitempty"`
	DecodeError string     `json:"decode_error,omitempty"`
	Value       any        `json:"value,omitempty"`
}

func newEventResponse(ev eventlog.Event) eventResponse {
	out := eventResponse{
		ID:          ev.ID,
		Command:     ev.Command,
		SentAt:      ev.SentAt.UTC(),
		TimedOut:    ev.TimedOut,
		SendError:   ev.SendError,
		DecodeError: ev.DecodeError,
	}
	if ev.HasResponse {
		resp := ev.Response
		out.Response = &resp
		recv := ev.ReceivedAt.UTC()
		out.ReceivedAt = &recv
		ms := float64(ev.Latency) / float64(time.Millisecond)
		out.LatencyMS = &ms
		if ev.DecodeError == "" {
			out.Value = ev.Value.Interface()
		}
	}
	return out
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// droneErrorStatus maps command failures onto HTTP status codes.
func droneErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument), errors.Is(err, correlator.ErrEmptyCommand):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCommandRejected):
		return http.StatusConflict
	case errors.Is(err, correlator.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, correlator.ErrTransportSend):
		return http.StatusBadGateway
	case errors.Is(err, correlator.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondCommand writes the outcome of a drone command. The logged event is
// included whenever the command got as far as the log.
func (h *Handler) respondCommand(c *gin.Context, ev eventlog.Event, err error) {
	if err != nil {
		code := droneErrorStatus(err)
		resp := gin.H{"error": err.Error()}
		if ev.Command != "" {
			resp["event"] = newEventResponse(ev)
		}
		if h.log != nil {
			if code >= http.StatusInternalServerError {
				h.log.Errorw("drone_command_failed", "command", ev.Command, "status", code, "err", err)
			} else {
				h.log.Infow("drone_command_failed", "command", ev.Command, "status", code, "err", err)
			}
		}
		c.JSON(code, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "event": newEventResponse(ev)})
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

type moveRequest struct {
	Direction  string `json:"direction" binding:"required"` // up | down | left | right | forward | back
	DistanceCM int    `json:"distance_cm" binding:"required"`
}

type rotateRequest struct {
	Direction string `json:"direction" binding:"required"` // cw | ccw
	Degrees   int    `json:"degrees" binding:"required"`
}

type speedRequest struct {
	SpeedCMS int `json:"speed_cm_s" binding:"required"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Send a raw command
// @Description  Sends the text verbatim and returns the correlated event, decoded when it is a query.
// @Tags         drone
// @Accept       json
// @Produce      json
// @Param        body  body   commandRequest  true  "Command payload"
// @Success      200   {object}  map[string]interface{}  "status, event"
// @Failure      400   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      502   {object}  map[string]interface{}
// @Failure      504   {object}  map[string]interface{}
// @Router       /api/v1/drone/command [post]
// @Security     BearerAuth
func (h *Handler) rawCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ev, err := h.services.Drone.Raw(c.Request.Context(), req.Command)
	h.respondCommand(c, ev, err)
}

// @Summary      Take off
// @Tags         drone
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Failure      504  {object}  map[string]interface{}
// @Router       /api/v1/drone/takeoff [post]
// @Security     BearerAuth
func (h *Handler) takeoff(c *gin.Context) {
	ev, err := h.services.Drone.Takeoff(c.Request.Context())
	h.respondCommand(c, ev, err)
}

// @Summary      Land
// @Tags         drone
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/drone/land [post]
// @Security     BearerAuth
func (h *Handler) land(c *gin.Context) {
	ev, err := h.services.Drone.Land(c.Request.Context())
	h.respondCommand(c, ev, err)
}

// @Summary      Emergency motor stop
// @Tags         drone
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/drone/emergency [post]
// @Security     BearerAuth
func (h *Handler) emergency(c *gin.Context) {
	ev, err := h.services.Drone.Emergency(c.Request.Context())
	h.respondCommand(c, ev, err)
}

func (h *Handler) streamOn(c *gin.Context) {
	ev, err := h.services.Drone.StreamOn(c.Request.Context())
	h.respondCommand(c, ev, err)
}

func (h *Handler) streamOff(c *gin.Context) {
	ev, err := h.services.Drone.StreamOff(c.Request.Context())
	h.respondCommand(c, ev, err)
}

// @Summary      Move
// @Tags         drone
// @Accept       json
// @Produce      json
// @Param        body  body   moveRequest  true  "Direction and distance (20..500 cm)"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/drone/move [post]
// @Security     BearerAuth
func (h *Handler) move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ev, err := h.services.Drone.Move(c.Request.Context(), service.MoveParams{
		Direction:  req.Direction,
		DistanceCM: req.DistanceCM,
	})
	h.respondCommand(c, ev, err)
}

// @Summary      Rotate
// @Tags         drone
// @Accept       json
// @Produce      json
// @Param        body  body   rotateRequest  true  "cw|ccw and degrees (1..360)"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/drone/rotate [post]
// @Security     BearerAuth
func (h *Handler) rotate(c *gin.Context) {
	var req rotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ev, err := h.services.Drone.Rotate(c.Request.Context(), service.RotateParams{
		Direction: req.Direction,
		Degrees:   req.Degrees,
	})
	h.respondCommand(c, ev, err)
}

func (h *Handler) setSpeed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ev, err := h.services.Drone.SetSpeed(c.Request.Context(), req.SpeedCMS)
	h.respondCommand(c, ev, err)
}

// @Summary      Query a value
// @Tags         drone
// @Produce      json
// @Param        name  path  string  true  "Query name"  Enums(battery,speed,time,height,temp,attitude,baro,acceleration,tof,wifi)
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      504   {object}  map[string]interface{}
// @Router       /api/v1/drone/query/{name} [get]
// @Security     BearerAuth
func (h *Handler) query(c *gin.Context) {
	ev, err := h.services.Drone.Query(c.Request.Context(), c.Param("name"))
	h.respondCommand(c, ev, err)
}

// @Summary      Get drone state
// @Description  Latest telemetry snapshot assembled by the poller.
// @Tags         drone
// @Produce      json
// @Success      200  {object}  models.DroneState
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/drone/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "drone_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

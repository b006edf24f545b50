package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"drone_commander/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid     = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid       = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errTimedOutInvalid = "invalid 'timed_out'; use true or false"
	errLimitInvalid    = "invalid 'limit'; use a positive integer"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"

	exportFileName = "CommandResponseLog.txt"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      List persisted command events
// @Description  Filter by send time (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). If 'to' is date-only, it is treated as end-of-day inclusive.
// @Tags         logs
// @Produce      json
// @Param        from       query   string  false  "Start of range"  example(2025-08-01)
// @Param        to         query   string  false  "End of range. Date-only treated as end of day."  example(2025-08-31)
// @Param        command    query   string  false  "Substring of the command text"
// @Param        timed_out  query   bool    false  "Only commands that timed out"
// @Param        session    query   string  false  "Correlator session id"
// @Param        limit      query   int     false  "Maximum number of events"
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		from, to time.Time
		err      error
		filter   = service.LogFilter{
			Command: strings.TrimSpace(c.Query("command")),
			Session: strings.TrimSpace(c.Query("session")),
		}
	)
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	// a date without time means the whole day
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}
	if qs := c.Query("timed_out"); qs != "" {
		filter.TimedOutOnly, err = strconv.ParseBool(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errTimedOutInvalid})
			return
		}
	}
	if qs := c.Query("limit"); qs != "" {
		filter.Limit, err = strconv.Atoi(qs)
		if err != nil || filter.Limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
	}
	filter.From, filter.To = from, to

	events, err := h.services.EventLog.List(ctx, filter)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("logs_list_failed", "err", err, "from", from, "to", to, "command", filter.Command)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Live command log
// @Description  Every command of the running session, including ones not yet flushed.
// @Tags         logs
// @Produce      json
// @Success      200   {object}  map[string]interface{}  "count, events"
// @Router       /api/v1/logs/live [get]
// @Security     BearerAuth
func (h *Handler) getLiveLogs(c *gin.Context) {
	events := h.services.EventLog.Live()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Export the live log as text
// @Tags         logs
// @Produce      plain
// @Success      200  {string}  string
// @Router       /api/v1/logs/export [get]
// @Security     BearerAuth
func (h *Handler) exportLogs(c *gin.Context) {
	if c.Query("download") != "" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName))
	}
	c.String(http.StatusOK, h.services.EventLog.Export())
}

// @Summary      Persist the live log now
// @Tags         logs
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "flushed"
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/logs/flush [post]
// @Security     BearerAuth
func (h *Handler) flushLogs(c *gin.Context) {
	n, err := h.services.EventLog.Flush(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to flush logs", "logs_flush_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flushed": n})
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}

package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// operatorKey holds the authenticated operator id in the gin context.
const operatorKey = "operatorId"

// authMiddleware accepts "Authorization: Bearer <token>" and stores the
// operator id under operatorKey.
func (h *Handler) authMiddleware(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	operatorID, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	c.Set(operatorKey, operatorID)
	c.Next()
}

// rateLimitMiddleware rejects drone commands beyond the configured rate.
func (h *Handler) rateLimitMiddleware(c *gin.Context) {
	if h.limiter == nil {
		c.Next()
		return
	}
	if !h.limiter.Allow() {
		retry := 1.0
		if lim := float64(h.limiter.Limit()); lim > 0 {
			retry = math.Max(1, math.Ceil(1/lim))
		}
		c.Header("Retry-After", strconv.Itoa(int(retry)))
		if h.log != nil {
			h.log.Infow("drone_command_rate_limited", "path", c.FullPath(), "operator_id", c.GetInt(operatorKey))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many drone commands, slow down",
		})
		return
	}
	c.Next()
}

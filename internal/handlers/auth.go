package handlers

import (
	"errors"
	"net/http"

	"drone_commander/internal/repository"
	"drone_commander/internal/service"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) bindCredentials(c *gin.Context) (credentials, bool) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		if h.log != nil {
			h.log.Infow("auth_bad_request_body", "path", c.FullPath(), "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return in, false
	}
	return in, true
}

// @Summary      Register an operator
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      credentials  true  "username (3-32 chars) and password (8-72 bytes)"
// @Success      201   {object}  map[string]int  "id"
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	in, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	id, err := h.services.SignUp(c.Request.Context(), in.Username, in.Password)
	switch {
	case err == nil:
		if h.log != nil {
			h.log.Infow("operator_registered", "operator_id", id, "username", in.Username)
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": repository.ErrUsernameTaken.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to register operator",
			"auth_sign_up_failed", err, "username", in.Username)
	}
}

// @Summary      Obtain an API token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      credentials  true  "username and password"
// @Success      200   {object}  service.Token
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	in, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	tok, err := h.services.SignIn(c.Request.Context(), in.Username, in.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, tok)
	case errors.Is(err, service.ErrInvalidCredentials):
		if h.log != nil {
			h.log.Infow("auth_sign_in_rejected", "username", in.Username)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to sign in",
			"auth_sign_in_failed", err, "username", in.Username)
	}
}

// @Summary      Current operator
// @Tags         auth
// @Produce      json
// @Success      200  {object}  models.Operator
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/me [get]
// @Security     BearerAuth
func (h *Handler) me(c *gin.Context) {
	op, err := h.services.Operator(c.Request.Context(), c.GetInt(operatorKey))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, op)
	case errors.Is(err, service.ErrOperatorNotFound):
		// token outlived its account
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load operator",
			"auth_me_failed", err, "operator_id", c.GetInt(operatorKey))
	}
}

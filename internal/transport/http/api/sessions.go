package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

const defaultHistoryLimit = 50

// CreateSession creates a new conversation.
// POST /api/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}

	sess, err := h.service.CreateSession(c.Request().Context(), req.Metadata)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// GetSession returns a session.
// GET /api/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// DeleteSession removes a session and its messages.
// DELETE /api/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSessionMessages returns the newest messages of a session.
// GET /api/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	limit := defaultHistoryLimit
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	resp, err := h.service.GetMessages(c.Request().Context(), c.Param("session_id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

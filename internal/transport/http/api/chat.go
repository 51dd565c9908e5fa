package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// Chat runs a blocking chat turn.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}

	resp, err := h.service.ProcessChatRequest(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ChatStream runs a chat turn and relays its events as server-sent events.
// Headers are written with the first event, so a request rejected before
// the turn starts still gets a plain JSON error.
// POST /api/chat/stream
func (h *Handler) ChatStream(c echo.Context) error {
	var req domain.ChatRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "streaming not supported", Code: "internal_error"})
	}

	w := c.Response()
	started := false
	emit := func(ev domain.StreamEvent) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.service.ProcessChatStream(c.Request().Context(), &req, emit)
	if !started {
		if err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		// Can't change status code after writing response
		log.Printf("ERROR: chat stream for session %s failed: %v", req.SessionID, err)
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

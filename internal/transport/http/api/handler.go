// Package api provides the HTTP handlers of the chat API.
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes on g, normally the /api group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:session_id", h.GetSession)
	g.DELETE("/sessions/:session_id", h.DeleteSession)
	g.GET("/sessions/:session_id/messages", h.GetSessionMessages)

	g.POST("/chat", h.Chat)
	g.POST("/chat/stream", h.ChatStream)

	g.POST("/documents", h.CreateDocument)
	g.GET("/documents", h.ListDocuments)
	g.GET("/documents/:document_id/chunks", h.GetDocumentChunks)
	g.DELETE("/documents/:document_id", h.DeleteDocument)

	g.GET("/health", h.Health)
}

// Validator adapts the request validation rules to echo.
type Validator struct{}

// NewValidator returns the validator to install as echo.Echo.Validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(i interface{}) error {
	return domain.Validate(i)
}

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// CreateDocument ingests a document for retrieval.
// POST /api/documents
func (h *Handler) CreateDocument(c echo.Context) error {
	var req domain.CreateDocumentRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}

	resp, err := h.service.CreateDocument(c.Request().Context(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// ListDocuments lists documents, optionally only those of one session.
// GET /api/documents?session_id=
func (h *Handler) ListDocuments(c echo.Context) error {
	docs, err := h.service.ListDocuments(c.Request().Context(), c.QueryParam("session_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents": docs,
	})
}

// GetDocumentChunks returns the chunks of a document in order.
// GET /api/documents/:document_id/chunks
func (h *Handler) GetDocumentChunks(c echo.Context) error {
	chunks, err := h.service.GetDocumentChunks(c.Request().Context(), c.Param("document_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"chunks": chunks,
	})
}

// DeleteDocument removes a document from the index and the store.
// DELETE /api/documents/:document_id
func (h *Handler) DeleteDocument(c echo.Context) error {
	if err := h.service.DeleteDocument(c.Request().Context(), c.Param("document_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

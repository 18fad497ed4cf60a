package handler

import (
	"context"
	"net/http"
	"strconv"

	"docvault/internal/domain/upload"
	"docvault/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DocumentReader interface {
	ListByClient(ctx context.Context, clientID string, limit int) ([]upload.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (upload.Document, error)
	Events(ctx context.Context, id uuid.UUID, limit int) ([]upload.AuditEvent, error)
}

type DocumentHandler struct {
	service DocumentReader
}

func NewDocumentHandler(service DocumentReader) *DocumentHandler {
	return &DocumentHandler{service: service}
}

func (h *DocumentHandler) List(c *gin.Context) {
	var req httpdto.ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("client_id is required", "INVALID_REQUEST"))
		return
	}
	docs, err := h.service.ListByClient(c.Request.Context(), req.ClientID, req.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListDocumentsResponse{
		Documents: httpdto.NewDocumentDTOs(docs),
	}))
}

func (h *DocumentHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid document id", "INVALID_REQUEST"))
		return
	}
	doc, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewDocumentDTO(doc)))
}

func (h *DocumentHandler) Events(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid document id", "INVALID_REQUEST"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := h.service.Events(c.Request.Context(), id, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"events": httpdto.NewAuditEventDTOs(events)}))
}

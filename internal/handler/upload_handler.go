package handler

import (
	"context"
	"errors"
	"net/http"

	"docvault/internal/domain/upload"
	"docvault/internal/services"
	"docvault/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type UploadSessions interface {
	Start(ctx context.Context, in services.StartUploadInput) (upload.Session, error)
	Get(key string) (upload.Session, error)
	List() []upload.Session
	ActiveCount() int
	Pause(ctx context.Context, key string) (upload.Session, error)
	Resume(ctx context.Context, key string) (upload.Session, error)
	Cancel(ctx context.Context, key string) (upload.Session, error)
}

type UploadHandler struct {
	service UploadSessions
}

func NewUploadHandler(service UploadSessions) *UploadHandler {
	return &UploadHandler{service: service}
}

// Start serves POST /v1/uploads. A session that fails validation is still
// returned so the caller sees the failed state.
func (h *UploadHandler) Start(c *gin.Context) {
	var req httpdto.StartUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	s, err := h.service.Start(c.Request.Context(), services.StartUploadInput{
		Path:       req.Path,
		ClientID:   req.ClientID,
		UploadedBy: req.UploadedBy,
	})
	if err != nil {
		var serr *upload.StageError
		if errors.As(err, &serr) && s.Key != "" {
			status, code := httpdto.ErrorStatus(err)
			c.JSON(status, httpdto.NewFailureResponse(httpdto.NewSessionDTO(s), err.Error(), code))
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, httpdto.NewSuccessResponse(httpdto.NewSessionDTO(s)))
}

func (h *UploadHandler) Get(c *gin.Context) {
	s, err := h.service.Get(c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewSessionDTO(s)))
}

func (h *UploadHandler) List(c *gin.Context) {
	sessions := h.service.List()
	out := make([]httpdto.SessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, httpdto.NewSessionDTO(s))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListSessionsResponse{
		Sessions: out,
		Active:   h.service.ActiveCount(),
	}))
}

func (h *UploadHandler) Pause(c *gin.Context) {
	h.control(c, h.service.Pause)
}

func (h *UploadHandler) Resume(c *gin.Context) {
	h.control(c, h.service.Resume)
}

func (h *UploadHandler) Cancel(c *gin.Context) {
	h.control(c, h.service.Cancel)
}

func (h *UploadHandler) control(c *gin.Context, op func(ctx context.Context, key string) (upload.Session, error)) {
	s, err := op(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewSessionDTO(s)))
}

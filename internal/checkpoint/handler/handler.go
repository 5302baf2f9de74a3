package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/checkpoint/service"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/pkg/middleware"
)

// Service is the checkpoint surface served over HTTP.
type Service interface {
	GetSnapshot(ctx context.Context, caller access.Caller, id document.ID) (*service.Snapshot, error)
	GetSteps(ctx context.Context, caller access.Caller, id document.ID, since int64) (*service.Steps, error)
	LatestVersion(ctx context.Context, caller access.Caller, id document.ID) (int64, error)
	SubmitSteps(ctx context.Context, caller access.Caller, id document.ID, baseVersion int64, clientID string, steps []json.RawMessage) (int64, error)
	SubmitSnapshot(ctx context.Context, caller access.Caller, id document.ID, version int64, content json.RawMessage) (int64, error)
}

type submitStepsRequest struct {
	BaseVersion *int64            `json:"baseVersion" validate:"required,min=0"`
	ClientID    string            `json:"clientId" validate:"required,max=128"`
	Steps       []json.RawMessage `json:"steps" validate:"required,min=1"`
}

type submitSnapshotRequest struct {
	Version *int64          `json:"version" validate:"required,min=0"`
	Content json.RawMessage `json:"content" validate:"required"`
}

type SyncHandler struct {
	svc      Service
	validate *validator.Validate
}

func NewSyncHandler(svc Service) *SyncHandler {
	return &SyncHandler{svc: svc, validate: validator.New()}
}

// Register mounts /documents/:id/sync/* on rg.
func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	sync := rg.Group("/documents/:id/sync")
	sync.GET("/snapshot", h.getSnapshot)
	sync.POST("/snapshot", h.submitSnapshot)
	sync.GET("/version", h.latestVersion)
	sync.GET("/steps", h.getSteps)
	sync.POST("/steps", h.submitSteps)
}

// bind rejects anonymous callers before looking at the body.
func (h *SyncHandler) bind(c *gin.Context, req interface{}) bool {
	if !middleware.CallerFrom(c).Authenticated() {
		apperr.Respond(c, apperr.ErrAuthenticationRequired)
		return false
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": apperr.CodeInvalidArgument})
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.CodeInvalidArgument})
		return false
	}
	return true
}

func docID(c *gin.Context) document.ID { return document.ID(c.Param("id")) }

func (h *SyncHandler) getSnapshot(c *gin.Context) {
	snap, err := h.svc.GetSnapshot(c.Request.Context(), middleware.CallerFrom(c), docID(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *SyncHandler) latestVersion(c *gin.Context) {
	v, err := h.svc.LatestVersion(c.Request.Context(), middleware.CallerFrom(c), docID(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

func (h *SyncHandler) getSteps(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		apperr.Respond(c, apperr.New(apperr.CodeInvalidArgument, "since must be a non-negative integer"))
		return
	}
	steps, err := h.svc.GetSteps(c.Request.Context(), middleware.CallerFrom(c), docID(c), since)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (h *SyncHandler) submitSteps(c *gin.Context) {
	var req submitStepsRequest
	if !h.bind(c, &req) {
		return
	}
	v, err := h.svc.SubmitSteps(c.Request.Context(), middleware.CallerFrom(c), docID(c), *req.BaseVersion, req.ClientID, req.Steps)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

func (h *SyncHandler) submitSnapshot(c *gin.Context) {
	var req submitSnapshotRequest
	if !h.bind(c, &req) {
		return
	}
	v, err := h.svc.SubmitSnapshot(c.Request.Context(), middleware.CallerFrom(c), docID(c), *req.Version, req.Content)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v})
}

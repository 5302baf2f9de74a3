package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/pkg/middleware"
)

// Service is the part of service.Service the HTTP layer needs.
type Service interface {
	List(ctx context.Context, caller access.Caller) ([]*document.Document, error)
	Search(ctx context.Context, caller access.Caller, q string) ([]*document.Document, error)
	Get(ctx context.Context, caller access.Caller, id document.ID) (*document.Document, error)
	Create(ctx context.Context, caller access.Caller, title string, isPublic bool) (document.ID, error)
	UpdateTitle(ctx context.Context, caller access.Caller, id document.ID, title string) error
	UpdateVisibility(ctx context.Context, caller access.Caller, id document.ID, isPublic bool) error
	Delete(ctx context.Context, caller access.Caller, id document.ID) error
	Touch(ctx context.Context, caller access.Caller, id document.ID) error
}

type createRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	IsPublic bool   `json:"isPublic"`
}

type titleRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type visibilityRequest struct {
	IsPublic *bool `json:"isPublic" validate:"required"`
}

type DocumentHandler struct {
	svc      Service
	validate *validator.Validate
}

func NewDocumentHandler(svc Service) *DocumentHandler {
	return &DocumentHandler{svc: svc, validate: validator.New()}
}

// Register mounts the document routes on rg, which must already carry the
// auth middleware.
func (h *DocumentHandler) Register(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	docs.GET("", h.list)
	docs.POST("", h.create)
	docs.GET("/:id", h.get)
	docs.PATCH("/:id/title", h.updateTitle)
	docs.PATCH("/:id/visibility", h.updateVisibility)
	docs.DELETE("/:id", h.delete)
	docs.POST("/:id/touch", h.touch)
}

// bind rejects anonymous callers, then decodes and validates the JSON
// body into req.
func (h *DocumentHandler) bind(c *gin.Context, req interface{}) bool {
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

// list serves both list and, with ?q=, search.
func (h *DocumentHandler) list(c *gin.Context) {
	var (
		docs []*document.Document
		err  error
	)
	if q, ok := c.GetQuery("q"); ok {
		docs, err = h.svc.Search(c.Request.Context(), middleware.CallerFrom(c), q)
	} else {
		docs, err = h.svc.List(c.Request.Context(), middleware.CallerFrom(c))
	}
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) create(c *gin.Context) {
	var req createRequest
	if !h.bind(c, &req) {
		return
	}
	id, err := h.svc.Create(c.Request.Context(), middleware.CallerFrom(c), req.Title, req.IsPublic)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *DocumentHandler) get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), middleware.CallerFrom(c), docID(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if d == nil {
		apperr.Respond(c, apperr.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DocumentHandler) updateTitle(c *gin.Context) {
	var req titleRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.UpdateTitle(c.Request.Context(), middleware.CallerFrom(c), docID(c), req.Title); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) updateVisibility(c *gin.Context) {
	var req visibilityRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.UpdateVisibility(c.Request.Context(), middleware.CallerFrom(c), docID(c), *req.IsPublic); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CallerFrom(c), docID(c)); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DocumentHandler) touch(c *gin.Context) {
	if err := h.svc.Touch(c.Request.Context(), middleware.CallerFrom(c), docID(c)); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

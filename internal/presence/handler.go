package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/pkg/middleware"
)

// Presence is the part of Service the HTTP layer needs.
type Presence interface {
	Heartbeat(ctx context.Context, caller access.Caller, id document.ID) (*Status, error)
	Viewers(ctx context.Context, caller access.Caller, id document.ID) ([]Viewer, error)
	Leave(ctx context.Context, caller access.Caller, id document.ID) error
}

type Handler struct {
	svc Presence
}

func NewHandler(svc Presence) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/documents/:id/presence")
	p.POST("", h.heartbeat)
	p.GET("", h.viewers)
	p.DELETE("", h.leave)
}

func (h *Handler) heartbeat(c *gin.Context) {
	st, err := h.svc.Heartbeat(c.Request.Context(), middleware.CallerFrom(c), document.ID(c.Param("id")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) viewers(c *gin.Context) {
	vs, err := h.svc.Viewers(c.Request.Context(), middleware.CallerFrom(c), document.ID(c.Param("id")))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"viewers": vs, "count": len(vs)})
}

func (h *Handler) leave(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), middleware.CallerFrom(c), document.ID(c.Param("id"))); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

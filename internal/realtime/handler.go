package realtime

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// VersionReader authorizes the caller to read id and returns its version.
type VersionReader interface {
	LatestVersion(ctx context.Context, caller access.Caller, id document.ID) (int64, error)
}

type Handler struct {
	hub      *Hub
	versions VersionReader
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from any origin listed in origins; an empty
// list accepts all.
func NewHandler(hub *Hub, versions VersionReader, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Handler{
		hub:      hub,
		versions: versions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || allowed[r.Header.Get("Origin")]
			},
		},
	}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/ws", h.connect)
}

func (h *Handler) connect(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	id := document.ID(c.Param("id"))
	if _, err := h.versions.LatestVersion(c.Request.Context(), caller, id); err != nil {
		apperr.Respond(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "documentId", id, "error", err)
		return
	}
	client := newClient(uuid.NewString(), caller, id, conn, h.hub)
	if err := h.hub.register(client); err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrTooManyConnections) {
			code = websocket.ClosePolicyViolation
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
		conn.Close()
		return
	}

	// read the version again: commits between the check and register would
	// otherwise go unnoticed
	version, err := h.versions.LatestVersion(context.Background(), caller, id)
	if err != nil {
		logger.Warnw("websocket hello failed", "documentId", id, "error", err)
		h.hub.unregister(client)
	} else {
		h.hub.sendTo(client, TypeHello, HelloPayload{DocumentID: id, Version: version})
	}

	go client.writePump()
	go client.readPump()
}

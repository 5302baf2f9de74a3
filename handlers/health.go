package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency. A nil error means it is usable.
type Check func(ctx context.Context) error

// Health serves liveness and readiness probes.
type Health struct {
	started time.Time
	timeout time.Duration
	checks  map[string]Check
	now     func() time.Time
}

func NewHealth(checks map[string]Check) *Health {
	return &Health{started: time.Now(), timeout: 2 * time.Second, checks: checks, now: time.Now}
}

func (h *Health) Register(r gin.IRoutes) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "collabdocs is running", "time": h.now().UTC().Format(time.RFC3339)})
	})
	r.GET("/ready", h.ready)
}

// ready answers 200 only when every dependency check passes.
func (h *Health) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	deps := make(map[string]bool, len(names))
	errs := gin.H{}
	for _, name := range names {
		err := h.checks[name](ctx)
		deps[name] = err == nil
		if err != nil {
			ready = false
			errs[name] = err.Error()
		}
	}

	body := gin.H{"deps": deps, "uptime": h.now().Sub(h.started).Round(time.Second).String()}
	if !ready {
		body["status"] = "not_ready"
		body["errors"] = errs
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}

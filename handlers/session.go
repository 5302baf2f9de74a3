package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/internal/tokens"
	"github.com/gogotex/collabdocs/pkg/logger"
	"github.com/gogotex/collabdocs/pkg/middleware"
)

// Revoker blacklists access tokens until they expire.
type Revoker interface {
	Enabled() bool
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// SessionHandler serves the caller's identity and logout. Its routes must be
// mounted behind the auth middleware.
type SessionHandler struct {
	revoker Revoker
	now     func() time.Time
}

func NewSessionHandler(r Revoker) *SessionHandler {
	return &SessionHandler{revoker: r, now: time.Now}
}

func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
	rg.POST("/session/logout", h.Logout)
}

// Me returns the verified identity of the caller.
func (h *SessionHandler) Me(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if !caller.Authenticated() {
		apperr.Respond(c, apperr.ErrAuthenticationRequired)
		return
	}
	claims := middleware.ClaimsFrom(c)
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	c.JSON(http.StatusOK, gin.H{"sub": caller.String(), "name": name, "email": email})
}

// Logout revokes the presented access token for the rest of its lifetime.
// Without a revocation store the token simply stays valid until it expires.
func (h *SessionHandler) Logout(c *gin.Context) {
	caller := middleware.CallerFrom(c)
	if !caller.Authenticated() {
		apperr.Respond(c, apperr.ErrAuthenticationRequired)
		return
	}
	if h.revoker == nil || !h.revoker.Enabled() {
		c.JSON(http.StatusOK, gin.H{"message": "logged out", "revoked": false})
		return
	}
	ttl := tokens.ExpiresIn(middleware.ClaimsFrom(c), h.now())
	if err := h.revoker.Revoke(c.Request.Context(), middleware.TokenFrom(c), ttl); err != nil {
		logger.Errorw("token revocation failed", "caller", caller, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access token"})
		return
	}
	logger.Infow("access token revoked", "caller", caller, "ttl", ttl.Round(time.Second).String())
	c.JSON(http.StatusOK, gin.H{"message": "logged out", "revoked": ttl > 0})
}

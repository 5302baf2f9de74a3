package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/sessions"
	"github.com/gogotex/collabdocs/internal/tokens"
	"github.com/gogotex/collabdocs/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sessionRouter(t *testing.T, bl *sessions.Blacklist) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	api := g.Group("/api/v1", middleware.AuthMiddleware(tokens.NewHMACVerifier(secret), middleware.AllowAnonymous(), middleware.WithRevocations(bl)))
	NewSessionHandler(bl).Register(api)
	return g
}

func call(g *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestMe(t *testing.T) {
	g := sessionRouter(t, sessions.NewBlacklist(nil, "test:"))
	tok, err := tokens.GenerateAccessToken(secret, tokens.Subject{Sub: "alice", Name: "Alice", Email: "alice@example.com"}, time.Minute)
	require.NoError(t, err)

	w := call(g, http.MethodGet, "/api/v1/me", tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, map[string]string{"sub": "alice", "name": "Alice", "email": "alice@example.com"}, me)

	require.Equal(t, http.StatusUnauthorized, call(g, http.MethodGet, "/api/v1/me", "").Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()
	g := sessionRouter(t, sessions.NewBlacklist(client, "test:"))

	tok, err := tokens.GenerateAccessToken(secret, tokens.Subject{Sub: "alice"}, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, call(g, http.MethodGet, "/api/v1/me", tok).Code)

	w := call(g, http.MethodPost, "/api/v1/session/logout", tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"revoked":true`)
	require.Len(t, m.Keys(), 1)
	ttl := m.TTL(m.Keys()[0])
	require.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "ttl %s", ttl)

	require.Equal(t, http.StatusUnauthorized, call(g, http.MethodGet, "/api/v1/me", tok).Code)

	other, err := tokens.GenerateAccessToken(secret, tokens.Subject{Sub: "alice"}, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, call(g, http.MethodGet, "/api/v1/me", other).Code)
}

func TestLogoutWithoutRevocationStore(t *testing.T) {
	g := sessionRouter(t, sessions.NewBlacklist(nil, "test:"))
	tok, err := tokens.GenerateAccessToken(secret, tokens.Subject{Sub: "alice"}, time.Minute)
	require.NoError(t, err)

	w := call(g, http.MethodPost, "/api/v1/session/logout", tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"revoked":false`)
	require.Equal(t, http.StatusUnauthorized, call(g, http.MethodPost, "/api/v1/session/logout", "").Code)
}

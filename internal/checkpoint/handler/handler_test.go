package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/checkpoint/service"
	"github.com/gogotex/collabdocs/internal/checkpoint/store"
	"github.com/gogotex/collabdocs/internal/document/repository"
	docservice "github.com/gogotex/collabdocs/internal/document/service"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/pkg/middleware"
	"github.com/stretchr/testify/require"
)

type subjectToken string

func (t subjectToken) Claims(v interface{}) error {
	m, ok := v.(*map[string]interface{})
	if !ok {
		return errors.New("unsupported claims type")
	}
	*m = map[string]interface{}{"sub": string(t)}
	return nil
}

type tokenIsSubject struct{}

func (tokenIsSubject) Verify(_ context.Context, raw string) (middleware.Token, error) {
	return subjectToken(raw), nil
}

func setup(t *testing.T) (*gin.Engine, *docservice.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	bus := events.NewBus()
	docs := docservice.New(repo, bus)
	docs.Subscribe(bus)
	svc := service.New(repo, store.NewMemoryStore(), bus)

	g := gin.New()
	api := g.Group("/api/v1", middleware.AuthMiddleware(tokenIsSubject{}, middleware.AllowAnonymous()))
	NewSyncHandler(svc).Register(api)
	return g, docs
}

func do(g *gin.Engine, method, path, caller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set("Authorization", "Bearer "+caller)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func version(t *testing.T, w *httptest.ResponseRecorder) int64 {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Version int64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Version
}

func TestSyncHandler_Flow(t *testing.T) {
	g, docs := setup(t)
	id, err := docs.Create(context.Background(), "alice", "shared", true)
	require.NoError(t, err)
	base := "/api/v1/documents/" + id.String() + "/sync"

	require.Zero(t, version(t, do(g, http.MethodGet, base+"/version", "bob", "")))

	v := version(t, do(g, http.MethodPost, base+"/steps", "bob", `{"baseVersion":0,"clientId":"tab-1","steps":[{"insert":"a"}]}`))
	require.Equal(t, int64(1), v)

	w := do(g, http.MethodPost, base+"/steps", "alice", `{"baseVersion":0,"clientId":"tab-2","steps":[{"insert":"b"}]}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `"retryable":true`)

	w = do(g, http.MethodGet, base+"/steps?since=0", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var steps service.Steps
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &steps))
	require.Equal(t, int64(1), steps.Version)
	require.Len(t, steps.Batches, 1)
	require.Equal(t, "tab-1", steps.Batches[0].ClientID)
	require.JSONEq(t, `{"insert":"a"}`, string(steps.Batches[0].Steps[0]))

	v = version(t, do(g, http.MethodPost, base+"/snapshot", "alice", `{"version":1,"content":{"type":"doc","text":"a"}}`))
	require.Equal(t, int64(2), v)

	w = do(g, http.MethodGet, base+"/snapshot", "bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.EqualValues(t, 2, snap["version"])
	require.EqualValues(t, 2, snap["latestVersion"])
	require.Equal(t, map[string]interface{}{"type": "doc", "text": "a"}, snap["content"])

	w = do(g, http.MethodGet, base+"/steps?since=0", "alice", "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncHandler_Errors(t *testing.T) {
	g, docs := setup(t)
	id, err := docs.Create(context.Background(), "alice", "private", false)
	require.NoError(t, err)
	base := "/api/v1/documents/" + id.String() + "/sync"

	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodGet, base+"/snapshot", "", "").Code)
	require.Equal(t, http.StatusForbidden, do(g, http.MethodGet, base+"/snapshot", "bob", "").Code)
	require.Equal(t, http.StatusNotFound, do(g, http.MethodGet, "/api/v1/documents/missing/sync/snapshot", "alice", "").Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodGet, base+"/steps?since=-1", "alice", "").Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodGet, base+"/steps?since=abc", "alice", "").Code)

	// missing baseVersion, empty steps, missing content
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, base+"/steps", "alice", `{"clientId":"c","steps":[1]}`).Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, base+"/steps", "alice", `{"baseVersion":0,"clientId":"c","steps":[]}`).Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, base+"/snapshot", "alice", `{"version":0}`).Code)
	require.Equal(t, http.StatusBadRequest, do(g, http.MethodPost, base+"/snapshot", "alice", `{"version":0,"content":null}`).Code)

	// anonymous callers are turned away before the body is read
	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodPost, base+"/steps", "", `not json`).Code)
	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodPost, base+"/steps", "", `{"clientId":"c"}`).Code)
	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodPost, base+"/snapshot", "", `{"version":0}`).Code)
}

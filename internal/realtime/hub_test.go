package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/checkpoint/service"
	"github.com/gogotex/collabdocs/internal/checkpoint/store"
	"github.com/gogotex/collabdocs/internal/document"
	"github.com/gogotex/collabdocs/internal/document/repository"
	docservice "github.com/gogotex/collabdocs/internal/document/service"
	"github.com/gogotex/collabdocs/internal/events"
	"github.com/gogotex/collabdocs/pkg/metrics"
	"github.com/gogotex/collabdocs/pkg/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type subjectToken string

func (t subjectToken) Claims(v interface{}) error {
	*(v.(*map[string]interface{})) = map[string]interface{}{"sub": string(t)}
	return nil
}

type tokenIsSubject struct{}

func (tokenIsSubject) Verify(_ context.Context, raw string) (middleware.Token, error) {
	return subjectToken(raw), nil
}

type fixture struct {
	srv  *httptest.Server
	hub  *Hub
	docs *docservice.Service
	sync *service.Service
}

func setup(t *testing.T, maxPerUser int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	bus := events.NewBus()
	docs := docservice.New(repo, bus)
	docs.Subscribe(bus)
	sync := service.New(repo, store.NewMemoryStore(), bus)
	sync.Subscribe(bus)
	hub := NewHub(repo, maxPerUser)
	hub.Subscribe(bus)

	g := gin.New()
	NewHandler(hub, sync, nil).Register(g.Group("/api/v1", middleware.AuthMiddleware(tokenIsSubject{}, middleware.AllowAnonymous())))
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: hub, docs: docs, sync: sync}
}

func (f *fixture) dial(id document.ID, caller string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/documents/" + id.String() + "/ws"
	if caller != "" {
		url += "?access_token=" + caller
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func read(t *testing.T, conn *websocket.Conn, payload interface{}) MessageType {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	if payload != nil {
		require.NoError(t, json.Unmarshal(msg.Payload, payload))
	}
	return msg.Type
}

func TestHub_CommitsAndDeletion(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	id, err := f.docs.Create(ctx, "alice", "shared", true)
	require.NoError(t, err)
	before := testutil.ToFloat64(metrics.RealtimeConnections)

	conn, _, err := f.dial(id, "bob")
	require.NoError(t, err)
	defer conn.Close()

	var hello HelloPayload
	require.Equal(t, TypeHello, read(t, conn, &hello))
	require.Equal(t, id, hello.DocumentID)
	require.Zero(t, hello.Version)
	require.Equal(t, 1, f.hub.Connections(id))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.RealtimeConnections))

	_, err = f.sync.SubmitSteps(ctx, "alice", id, 0, "tab", []json.RawMessage{json.RawMessage(`{"i":1}`)})
	require.NoError(t, err)
	var committed CommittedPayload
	require.Equal(t, TypeCommitted, read(t, conn, &committed))
	require.Equal(t, CommittedPayload{DocumentID: id, Version: 1, Kind: "steps", Author: "alice"}, committed)

	require.NoError(t, conn.WriteJSON(Message{Type: TypePing}))
	require.Equal(t, TypePong, read(t, conn, nil))

	require.NoError(t, f.docs.Delete(ctx, "alice", id))
	var deleted DeletedPayload
	require.Equal(t, TypeDeleted, read(t, conn, &deleted))
	require.Equal(t, id, deleted.DocumentID)

	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Zero(t, f.hub.Connections(id))
	require.Equal(t, before, testutil.ToFloat64(metrics.RealtimeConnections))
}

func TestHub_DropsReadersWhenDocumentGoesPrivate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	id, err := f.docs.Create(ctx, "alice", "shared", true)
	require.NoError(t, err)

	bob, _, err := f.dial(id, "bob")
	require.NoError(t, err)
	defer bob.Close()
	require.Equal(t, TypeHello, read(t, bob, nil))
	owner, _, err := f.dial(id, "alice")
	require.NoError(t, err)
	defer owner.Close()
	require.Equal(t, TypeHello, read(t, owner, nil))
	require.Equal(t, 2, f.hub.Connections(id))

	require.NoError(t, f.docs.UpdateVisibility(ctx, "alice", id, false))
	_, err = f.sync.SubmitSteps(ctx, "alice", id, 0, "tab", []json.RawMessage{json.RawMessage(`{"i":1}`)})
	require.NoError(t, err)

	// the owner still hears about the commit
	var committed CommittedPayload
	require.Equal(t, TypeCommitted, read(t, owner, &committed))
	require.Equal(t, int64(1), committed.Version)

	// bob is disconnected without seeing it
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = bob.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Equal(t, 1, f.hub.Connections(id))
}

func TestHub_OtherDocumentsNotNotified(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 0)
	a, err := f.docs.Create(ctx, "alice", "a", true)
	require.NoError(t, err)
	b, err := f.docs.Create(ctx, "alice", "b", true)
	require.NoError(t, err)

	conn, _, err := f.dial(a, "bob")
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, TypeHello, read(t, conn, nil))

	_, err = f.sync.SubmitSteps(ctx, "alice", b, 0, "tab", []json.RawMessage{json.RawMessage(`1`)})
	require.NoError(t, err)
	_, err = f.sync.SubmitSteps(ctx, "alice", a, 0, "tab", []json.RawMessage{json.RawMessage(`2`)})
	require.NoError(t, err)

	var committed CommittedPayload
	require.Equal(t, TypeCommitted, read(t, conn, &committed))
	require.Equal(t, a, committed.DocumentID)
}

func TestHandler_Rejects(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 1)
	private, err := f.docs.Create(ctx, "alice", "secret", false)
	require.NoError(t, err)

	_, resp, err := f.dial(private, "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = f.dial(private, "bob")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = f.dial("missing", "bob")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := f.dial(private, "alice")
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, TypeHello, read(t, conn, nil))

	// second socket for the same caller is over the limit
	second, _, err := f.dial(private, "alice")
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = second.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	require.Equal(t, 1, f.hub.Connections(private))
}

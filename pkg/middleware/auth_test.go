package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier implements Verifier
type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	switch raw {
	case "goodtoken", "black-token":
		return &fakeToken{data: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}, nil
	case "nosub":
		return &fakeToken{data: map[string]interface{}{"email": "x@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(t *testing.T, mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": CallerFrom(c).String(), "claims": ClaimsFrom(c), "hasToken": TokenFrom(c) != ""})
	})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	rw := serve(t, AuthMiddleware(&fakeVerifier{}), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_AnonymousAllowed(t *testing.T) {
	rw := serve(t, AuthMiddleware(&fakeVerifier{}, AllowAnonymous()), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rw.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "", got["caller"])
	require.Equal(t, false, got["hasToken"])
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	for _, h := range []string{"BadHeader", "Bearer", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", h)
		rw := serve(t, AuthMiddleware(&fakeVerifier{}, AllowAnonymous()), req)
		require.Equal(t, http.StatusUnauthorized, rw.Code, "header %q", h)
	}
}

func TestAuthMiddleware_InvalidTokenIsRejectedEvenWhenAnonymousAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rw := serve(t, AuthMiddleware(&fakeVerifier{}, AllowAnonymous()), req)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_TokenWithoutSubject(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nosub")
	rw := serve(t, AuthMiddleware(&fakeVerifier{}), req)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer goodtoken")
	rw := serve(t, AuthMiddleware(&fakeVerifier{}), req)

	require.Equal(t, http.StatusOK, rw.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got["caller"])
	require.Equal(t, true, got["hasToken"])
	require.Contains(t, got, "claims")
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	rw := serve(t, AuthMiddleware(&fakeVerifier{}), httptest.NewRequest(http.MethodGet, "/?access_token=goodtoken", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Contains(t, rw.Body.String(), `"caller":"user1"`)
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	bl := sessions.NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}), "")

	token := "black-token"
	require.NoError(t, bl.Revoke(context.Background(), token, 5*time.Second))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := serve(t, AuthMiddleware(&fakeVerifier{}, WithRevocations(bl)), req)
	require.Equal(t, http.StatusUnauthorized, rw.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer goodtoken")
	rw = serve(t, AuthMiddleware(&fakeVerifier{}, WithRevocations(bl)), req)
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestCallerFromWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.Equal(t, access.Anonymous, CallerFrom(c))
	require.Nil(t, ClaimsFrom(c))
}

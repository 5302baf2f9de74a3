package tokens

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func seg(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

const testSecret = "test-secret-32-bytes-should-be-long-enough"

func TestGenerateAndVerify(t *testing.T) {
	tok, err := GenerateAccessToken(testSecret, Subject{Sub: "user-123", Name: "Test User", Email: "test@example.com"}, 2*time.Minute)
	require.NoError(t, err)

	verified, err := NewHMACVerifier(testSecret).Verify(context.Background(), tok)
	require.NoError(t, err)

	var claims map[string]interface{}
	require.NoError(t, verified.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, "Test User", claims["name"])

	left := ExpiresIn(claims, time.Now())
	require.Greater(t, left, time.Minute)
	require.LessOrEqual(t, left, 2*time.Minute)
}

func TestGenerateRequiresSecret(t *testing.T) {
	_, err := GenerateAccessToken("", Subject{Sub: "u"}, time.Minute)
	require.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	tok, err := GenerateAccessToken(testSecret, Subject{Sub: "u2"}, -time.Second)
	require.NoError(t, err)
	_, err = NewHMACVerifier(testSecret).Verify(context.Background(), tok)
	require.Error(t, err)
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := GenerateAccessToken(testSecret, Subject{Sub: "u3"}, time.Minute)
	require.NoError(t, err)
	_, err = NewHMACVerifier("different-secret-xxxxxxxxxxxxxxxx").Verify(context.Background(), tok)
	require.Error(t, err)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := NewHMACVerifier(testSecret).Verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
}

func TestVerify_AlgNoneRejected(t *testing.T) {
	headerEnc := seg([]byte(`{"alg":"none"}`))
	payloadEnc := seg([]byte(`{"sub":"u-none","exp":9999999999}`))
	_, err := NewHMACVerifier(testSecret).Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

func TestVerify_MissingExpRejected(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "forever"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = NewHMACVerifier(testSecret).Verify(context.Background(), tok)
	require.Error(t, err)
}

func TestVerify_TamperedPayload(t *testing.T) {
	tok, err := GenerateAccessToken(testSecret, Subject{Sub: "user-t"}, 5*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	parts[1] = seg([]byte(strings.Replace(string(payload), "user-t", "attacker", 1)))

	_, err = NewHMACVerifier(testSecret).Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}

func TestExpiresIn(t *testing.T) {
	now := time.Unix(1000, 0)
	require.Equal(t, 10*time.Second, ExpiresIn(map[string]interface{}{"exp": float64(1010)}, now))
	require.Zero(t, ExpiresIn(map[string]interface{}{"exp": float64(900)}, now))
	require.Zero(t, ExpiresIn(map[string]interface{}{}, now))
}

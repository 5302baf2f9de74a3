package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gogotex/collabdocs/pkg/middleware"
)

// Subject is the identity an access token is issued for.
type Subject struct {
	Sub   string
	Name  string
	Email string
}

// GenerateAccessToken creates a signed HS256 access token for s.
func GenerateAccessToken(secret string, s Subject, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   s.Sub,
		"name":  s.Name,
		"email": s.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(secret))
}

// claimsToken exposes verified claims to the auth middleware.
type claimsToken struct {
	claims jwt.MapClaims
}

func (t *claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HMACVerifier verifies HS256 tokens issued by GenerateAccessToken. Used when
// no Keycloak realm is configured.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return &claimsToken{claims: claims}, nil
}

// ExpiresIn returns how long the token described by claims stays valid, zero
// when it has expired or carries no exp claim.
func ExpiresIn(claims map[string]interface{}, now time.Time) time.Duration {
	var exp int64
	switch v := claims["exp"].(type) {
	case float64:
		exp = int64(v)
	case int64:
		exp = v
	case json.Number:
		exp, _ = v.Int64()
	default:
		return 0
	}
	if d := time.Unix(exp, 0).Sub(now); d > 0 {
		return d
	}
	return 0
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/collabdocs/internal/access"
	"github.com/gogotex/collabdocs/internal/apperr"
	"github.com/gogotex/collabdocs/pkg/logger"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey = "claims"
	CallerKey = "caller"
	TokenKey  = "accessToken"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationChecker reports tokens revoked before their expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type authOptions struct {
	anonymous   bool
	revocations RevocationChecker
}

type AuthOption func(*authOptions)

// AllowAnonymous lets requests without credentials through as the anonymous
// caller. Presented credentials are still verified.
func AllowAnonymous() AuthOption {
	return func(o *authOptions) { o.anonymous = true }
}

// WithRevocations rejects tokens that rc reports as revoked.
func WithRevocations(rc RevocationChecker) AuthOption {
	return func(o *authOptions) { o.revocations = rc }
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// access_token query parameter that browsers use for websocket upgrades.
// ok is false for a malformed header.
func bearerToken(c *gin.Context) (token string, ok bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, rest, found := strings.Cut(h, " ")
		rest = strings.TrimSpace(rest)
		if !found || !strings.EqualFold(scheme, "Bearer") || rest == "" {
			return "", false
		}
		return rest, true
	}
	return c.Query("access_token"), true
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": apperr.CodeAuthenticationRequired})
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using
// the provided verifier and resolves the caller from the "sub" claim.
func AuthMiddleware(ver Verifier, opts ...AuthOption) gin.HandlerFunc {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "invalid Authorization header")
			return
		}
		if token == "" {
			if o.anonymous {
				c.Set(CallerKey, access.Anonymous)
				c.Next()
				return
			}
			unauthorized(c, "missing Authorization header")
			return
		}
		if ver == nil {
			unauthorized(c, "authentication is not configured")
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			logger.Debugf("token verification failed: %v", err)
			unauthorized(c, "invalid token")
			return
		}

		if o.revocations != nil {
			revoked, err := o.revocations.IsRevoked(c.Request.Context(), token)
			if err != nil {
				logger.Errorw("revocation check failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "revocation check failed"})
				return
			}
			if revoked {
				unauthorized(c, "token revoked")
				return
			}
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			unauthorized(c, "failed to parse claims")
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			unauthorized(c, "token has no subject")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(TokenKey, token)
		c.Set(CallerKey, access.Caller(sub))
		c.Next()
	}
}

// CallerFrom returns the caller resolved by AuthMiddleware, or the anonymous
// caller when none was resolved.
func CallerFrom(c *gin.Context) access.Caller {
	if v, ok := c.Get(CallerKey); ok {
		if caller, ok := v.(access.Caller); ok {
			return caller
		}
	}
	return access.Anonymous
}

// ClaimsFrom returns the verified token claims, nil for anonymous requests.
func ClaimsFrom(c *gin.Context) map[string]interface{} {
	if v, ok := c.Get(ClaimsKey); ok {
		if cm, ok := v.(map[string]interface{}); ok {
			return cm
		}
	}
	return nil
}

// TokenFrom returns the raw verified token, empty for anonymous requests.
func TokenFrom(c *gin.Context) string {
	return c.GetString(TokenKey)
}

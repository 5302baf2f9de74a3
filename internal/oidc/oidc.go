package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gogotex/collabdocs/pkg/middleware"
)

// Verifier checks Keycloak-issued ID tokens against the realm's published keys.
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuer. The discovery request runs
// under ctx; later verifications fetch keys lazily.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return &Verifier{
		issuer:   issuer,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Issuer is the discovered issuer URL.
func (v *Verifier) Issuer() string { return v.issuer }

// Verify implements middleware.Verifier.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

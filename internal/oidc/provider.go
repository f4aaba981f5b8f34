// Package oidc verifies bearer tokens presented by log producers.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/al-bashkir/securelog/internal/config"
)

// ErrMissingToken is returned for an empty bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// Identity is the verified producer behind a token.
type Identity struct {
	Subject string
	Claims  map[string]interface{}
}

// Verifier checks token signatures against the issuer's JWKS and then
// applies the configured role requirements.
type Verifier struct {
	verifier  *oidc.IDTokenVerifier
	validator *Validator
}

// NewVerifier creates a verifier for the configured issuer.
// It performs OIDC discovery via /.well-known/openid-configuration.
func NewVerifier(ctx context.Context, cfg *config.AuthConfig) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	// Signature, issuer, audience and expiry are checked by go-oidc
	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.Audience,
	})

	return &Verifier{
		verifier:  verifier,
		validator: NewValidator(cfg),
	}, nil
}

// Verify validates rawToken and returns the producer identity.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}

	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	var claims map[string]interface{}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	if err := v.validator.ValidateRoles(claims); err != nil {
		return nil, err
	}

	return &Identity{Subject: token.Subject, Claims: claims}, nil
}

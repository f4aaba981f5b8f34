package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/al-bashkir/securelog/internal/config"
	"github.com/al-bashkir/securelog/internal/oidc"
)

// APIKeyHeader carries a static producer key
const APIKeyHeader = "X-API-Key"

// ErrUnauthorized is returned for missing or invalid credentials
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator identifies the producer behind a request
type Authenticator interface {
	// Authenticate returns a principal name for logging, or an error
	// wrapping ErrUnauthorized.
	Authenticate(r *http.Request) (string, error)
	Name() string
}

// NewAuthenticator builds the authenticator selected by cfg.Mode
func NewAuthenticator(ctx context.Context, cfg *config.AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case "", "none":
		return NoAuth{}, nil
	case "api_key":
		return NewAPIKeyAuth(cfg.APIKeyHashes), nil
	case "oidc":
		v, err := oidc.NewVerifier(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewBearerAuth(v), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// NoAuth accepts every request
type NoAuth struct{}

func (NoAuth) Authenticate(*http.Request) (string, error) { return "anonymous", nil }

func (NoAuth) Name() string { return "none" }

// APIKeyAuth accepts keys matching one of a set of bcrypt hashes
type APIKeyAuth struct {
	hashes [][]byte
}

// NewAPIKeyAuth creates an authenticator for the given bcrypt hashes
func NewAPIKeyAuth(hashes []string) *APIKeyAuth {
	a := &APIKeyAuth{hashes: make([][]byte, len(hashes))}
	for i, h := range hashes {
		a.hashes[i] = []byte(h)
	}
	return a
}

// Authenticate reads the key from X-API-Key or "Authorization: ApiKey <key>"
func (a *APIKeyAuth) Authenticate(r *http.Request) (string, error) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		key = authorizationValue(r, "ApiKey")
	}
	if key == "" {
		return "", fmt.Errorf("%w: missing API key", ErrUnauthorized)
	}

	for i, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			return fmt.Sprintf("api_key#%d", i), nil
		}
	}
	return "", fmt.Errorf("%w: invalid API key", ErrUnauthorized)
}

func (a *APIKeyAuth) Name() string { return "api_key" }

// TokenVerifier validates a bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oidc.Identity, error)
}

// BearerAuth accepts OIDC bearer tokens
type BearerAuth struct {
	verifier TokenVerifier
}

// NewBearerAuth creates an authenticator backed by v
func NewBearerAuth(v TokenVerifier) *BearerAuth {
	return &BearerAuth{verifier: v}
}

func (a *BearerAuth) Authenticate(r *http.Request) (string, error) {
	token := authorizationValue(r, "Bearer")
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	id, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return id.Subject, nil
}

func (a *BearerAuth) Name() string { return "oidc" }

// authorizationValue returns the credential of an Authorization header
// using scheme, compared case-insensitively.
func authorizationValue(r *http.Request, scheme string) string {
	h := r.Header.Get("Authorization")
	if len(h) <= len(scheme)+1 || !strings.EqualFold(h[:len(scheme)], scheme) || h[len(scheme)] != ' ' {
		return ""
	}
	return strings.TrimSpace(h[len(scheme)+1:])
}

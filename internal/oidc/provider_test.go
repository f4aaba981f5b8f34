package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/al-bashkir/securelog/internal/config"
)

type testIssuer struct {
	URL string
	key *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	ti := &testIssuer{key: key}
	var baseURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		issuer := baseURL + "/realms/test"

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/realms/test/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"issuer":                 issuer,
				"authorization_endpoint": issuer + "/auth",
				"token_endpoint":         issuer + "/token",
				"jwks_uri":               issuer + "/keys",
			})
		case "/realms/test/keys":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"keys": []map[string]string{{
					"kty": "RSA",
					"alg": "RS256",
					"use": "sig",
					"kid": "test-key",
					"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	baseURL = ts.URL
	t.Cleanup(ts.Close)

	ti.URL = baseURL + "/realms/test"
	return ti
}

// sign returns an RS256 JWT carrying claims.
func (ti *testIssuer) sign(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	enc := func(v interface{}) string {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(data)
	}

	input := enc(map[string]string{"alg": "RS256", "typ": "JWT", "kid": "test-key"}) + "." + enc(claims)
	digest := sha256.Sum256([]byte(input))
	sig, err := rsa.SignPKCS1v15(rand.Reader, ti.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	return input + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (ti *testIssuer) claims(aud string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"iss": ti.URL,
		"sub": "producer-1",
		"aud": aud,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func TestVerifyValidToken(t *testing.T) {
	ti := newTestIssuer(t)

	v, err := NewVerifier(context.Background(), &config.AuthConfig{
		Issuer:   ti.URL,
		Audience: "securelog",
	})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	id, err := v.Verify(context.Background(), ti.sign(t, ti.claims("securelog")))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.Subject != "producer-1" {
		t.Errorf("subject = %q, want producer-1", id.Subject)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	ti := newTestIssuer(t)

	v, err := NewVerifier(context.Background(), &config.AuthConfig{
		Issuer:        ti.URL,
		Audience:      "securelog",
		RoleClaim:     "realm_access.roles",
		RequiredRoles: []string{"log-producer"},
	})
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	expired := ti.claims("securelog")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noRole := ti.claims("securelog")
	noRole["realm_access"] = map[string]interface{}{"roles": []string{"viewer"}}

	withRole := ti.claims("securelog")
	withRole["realm_access"] = map[string]interface{}{"roles": []string{"viewer", "log-producer"}}

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{name: "empty", token: "", wantErr: "missing bearer token"},
		{name: "garbage", token: "not.a.jwt", wantErr: "failed to verify token"},
		{name: "wrong audience", token: ti.sign(t, ti.claims("other")), wantErr: "failed to verify token"},
		{name: "expired", token: ti.sign(t, expired), wantErr: "failed to verify token"},
		{name: "missing role", token: ti.sign(t, noRole), wantErr: "does not have required roles"},
		{name: "role claim absent", token: ti.sign(t, ti.claims("securelog")), wantErr: "failed to extract roles"},
		{name: "has role", token: ti.sign(t, withRole)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyEmptyTokenSentinel(t *testing.T) {
	v := &Verifier{validator: NewValidator(&config.AuthConfig{})}
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestNewVerifier_DiscoveryFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)

	_, err := NewVerifier(context.Background(), &config.AuthConfig{
		Issuer:   ts.URL + "/realms/test",
		Audience: "securelog",
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

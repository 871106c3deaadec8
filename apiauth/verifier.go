package apiauth

import (
	"context"
	"crypto"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

// Claims are the verified identity of an API caller.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// Verifier checks the signature, issuer, audience and expiry of ID tokens.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

type VerifierOption func(*oidc.Config)

func WithNowFunc(now func() time.Time) VerifierOption {
	return func(c *oidc.Config) {
		c.Now = now
	}
}

// NewVerifier verifies tokens against a fixed set of public keys.
func NewVerifier(issuer, clientID string, keys []crypto.PublicKey, options ...VerifierOption) (*Verifier, error) {
	if len(keys) == 0 {
		return nil, errors.New("[apiauth.NewVerifier] at least one public key is required")
	}
	return newVerifier(issuer, clientID, &oidc.StaticKeySet{PublicKeys: keys}, options...)
}

// NewRemoteVerifier verifies tokens against the JSON Web Key Set served at jwksURL.
func NewRemoteVerifier(ctx context.Context, issuer, clientID, jwksURL string, options ...VerifierOption) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("[apiauth.NewRemoteVerifier] jwks url is required")
	}
	return newVerifier(issuer, clientID, oidc.NewRemoteKeySet(ctx, jwksURL), options...)
}

func newVerifier(issuer, clientID string, keySet oidc.KeySet, options ...VerifierOption) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("[apiauth.NewVerifier] issuer is required")
	}
	if clientID == "" {
		return nil, errors.New("[apiauth.NewVerifier] client id is required")
	}

	config := &oidc.Config{ClientID: clientID}
	for _, opt := range options {
		opt(config)
	}
	return &Verifier{verifier: oidc.NewVerifier(issuer, keySet, config)}, nil
}

func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Verifier.Verify] token rejected")
	}

	var extra struct {
		Email    string `json:"email"`
		TokenUse string `json:"token_use"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return nil, errors.Wrap(err, "[Verifier.Verify] claims")
	}
	if extra.TokenUse != "" && extra.TokenUse != "id" {
		return nil, errors.Errorf("[Verifier.Verify] unexpected token_use %q", extra.TokenUse)
	}

	return &Claims{
		Subject:   idToken.Subject,
		Email:     extra.Email,
		ExpiresAt: idToken.Expiry,
	}, nil
}

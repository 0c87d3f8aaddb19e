// Package auth verifies bearer JWTs against a provider's JWKS, mirroring
// the issuer/audience checks a gateway applies before letting a request
// reach the blueprint's resolvers.
package auth

import (
	"context"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/latticegql/lattice/pkg/errors"
)

// Claims is the subset of a verified token's claims Lattice cares about.
type Claims struct {
	Issuer   string
	Audience []string
}

// Provider verifies bearer tokens against one issuer's JWKS.
type Provider struct {
	issuer    string
	audiences map[string]struct{}
	jwksURL   string
	cache     *jwk.Cache
}

// NewProvider creates a Provider backed by a lazily-refreshed JWKS cache.
// issuer and audiences may be empty; an absent constraint accepts any
// corresponding claim.
func NewProvider(ctx context.Context, jwksURL, issuer string, audiences []string, client *http.Client) (*Provider, error) {
	cache := jwk.NewCache(ctx, jwk.WithRefreshWindow(0))
	if err := cache.Register(jwksURL, jwk.WithHTTPClient(client)); err != nil {
		return nil, errors.Wrap(err, errors.EConfig, "failed to register JWKS endpoint")
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, errors.Wrap(err, errors.EConfig, "failed to fetch JWKS")
	}

	aud := make(map[string]struct{}, len(audiences))
	for _, a := range audiences {
		aud[a] = struct{}{}
	}

	return &Provider{issuer: issuer, audiences: aud, jwksURL: jwksURL, cache: cache}, nil
}

// Verify parses and validates tokenString's signature against the JWKS,
// then checks issuer/audience against this provider's configuration.
func (p *Provider) Verify(ctx context.Context, tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, errors.New(errors.EAuth, "missing bearer token")
	}

	keySet, err := p.cache.Get(ctx, p.jwksURL)
	if err != nil {
		return Claims{}, errors.Wrap(err, errors.EAuth, "jwks unavailable")
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keySet))
	if err != nil {
		return Claims{}, errors.Wrap(err, errors.EAuth, "token validation failed")
	}

	claims := Claims{Issuer: token.Issuer(), Audience: token.Audience()}
	if !p.validIssuer(claims) || !p.validAudience(claims) {
		return Claims{}, errors.New(errors.EAuth, "token claims are invalid")
	}
	return claims, nil
}

// validIssuer: no configured issuer accepts anything; otherwise the
// token's iss must match exactly.
func (p *Provider) validIssuer(c Claims) bool {
	if p.issuer == "" {
		return true
	}
	return c.Issuer == p.issuer
}

// validAudience: no configured audiences accepts anything; otherwise at
// least one of the token's audiences must be in the configured set.
func (p *Provider) validAudience(c Claims) bool {
	if len(p.audiences) == 0 {
		return true
	}
	for _, a := range c.Audience {
		if _, ok := p.audiences[a]; ok {
			return true
		}
	}
	return false
}

// BearerToken extracts the token from an `Authorization: Bearer <token>`
// header value, returning ok=false if the header is absent or malformed.
func BearerToken(headerValue string) (string, bool) {
	const prefix = "Bearer "
	if len(headerValue) <= len(prefix) || headerValue[:len(prefix)] != prefix {
		return "", false
	}
	return headerValue[len(prefix):], true
}

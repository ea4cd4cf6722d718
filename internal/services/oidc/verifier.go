package oidc

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/kevinmaint/maint-api/internal/models"
)

// roleClaims are the claim names checked, in order, for the user's role
var roleClaims = []string{"role", "custom:role"}

// Verifier verifies JWT tokens against the provider's key set
type Verifier struct {
	keys     *KeyCache
	provider *Provider
}

// NewVerifier creates a new JWT verifier
func NewVerifier(keys *KeyCache, provider *Provider) *Verifier {
	return &Verifier{keys: keys, provider: provider}
}

// Verify verifies a JWT token and extracts claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	jwksURL := v.provider.JWKSURL(ctx)
	keys, err := v.keys.Keys(ctx, jwksURL)
	if err != nil {
		return nil, err
	}
	token, err := v.parse(tokenString, keys)
	if err != nil {
		// The provider may have rotated keys since the set was cached
		fresh, refreshErr := v.keys.Refresh(ctx, jwksURL)
		if refreshErr != nil {
			return nil, err
		}
		if token, err = v.parse(tokenString, fresh); err != nil {
			return nil, err
		}
	}

	claims := &models.JWTClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
		Exp: token.Expiration().Unix(),
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}

	if email, ok := token.Get("email"); ok {
		if emailStr, ok := email.(string); ok {
			claims.Email = emailStr
		}
	}
	if name, ok := token.Get("name"); ok {
		if nameStr, ok := name.(string); ok {
			claims.Name = nameStr
		}
	}
	for _, key := range roleClaims {
		if role, ok := token.Get(key); ok {
			if roleStr, ok := role.(string); ok && roleStr != "" {
				claims.Role = roleStr
				break
			}
		}
	}

	return claims, nil
}

func (v *Verifier) parse(tokenString string, keys jwk.Set) (jwt.Token, error) {
	settings := v.provider.Settings()
	opts := []jwt.ParseOption{
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(settings.Issuer),
	}
	if settings.Audience != "" {
		opts = append(opts, jwt.WithAudience(settings.Audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	return token, nil
}

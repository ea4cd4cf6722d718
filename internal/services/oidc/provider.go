package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Settings describes the identity provider the API trusts
type Settings struct {
	Issuer       string
	JWKSURL      string
	Audience     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// jwksURL returns the configured JWKS URL or the conventional one under the issuer
func (s Settings) jwksURL() string {
	if s.JWKSURL != "" {
		return s.JWKSURL
	}
	return strings.TrimRight(s.Issuer, "/") + "/.well-known/jwks.json"
}

// Provider resolves the provider's endpoints, preferring its discovery document
type Provider struct {
	settings   Settings
	httpClient *http.Client

	mu        sync.Mutex
	discovery *discoveryDocument
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider
func NewProvider(settings Settings) *Provider {
	return &Provider{
		settings:   settings,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Settings returns the provider settings
func (p *Provider) Settings() Settings {
	return p.settings
}

// LoginConfig contains OIDC login configuration for the mobile app
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
}

// GetLoginConfig returns the configuration needed for an app-side OIDC login.
// Endpoints come from the discovery document when it is reachable and are
// derived from the issuer otherwise.
func (p *Provider) GetLoginConfig(ctx context.Context) (*LoginConfig, error) {
	if p.settings.Issuer == "" {
		return nil, fmt.Errorf("OIDC issuer is not configured")
	}

	issuer := strings.TrimRight(p.settings.Issuer, "/")
	cfg := &LoginConfig{
		AuthorizationEndpoint: issuer + "/oauth2/authorize",
		TokenEndpoint:         issuer + "/oauth2/token",
		ClientID:              p.settings.ClientID,
		RedirectURI:           p.settings.RedirectURI,
		Scope:                 "openid email profile",
	}

	if doc := p.discover(ctx); doc != nil {
		if doc.AuthorizationEndpoint != "" {
			cfg.AuthorizationEndpoint = doc.AuthorizationEndpoint
		}
		if doc.TokenEndpoint != "" {
			cfg.TokenEndpoint = doc.TokenEndpoint
		}
	}
	return cfg, nil
}

// JWKSURL returns the key set location: explicit setting, then discovery, then convention
func (p *Provider) JWKSURL(ctx context.Context) string {
	if p.settings.JWKSURL != "" {
		return p.settings.JWKSURL
	}
	if doc := p.discover(ctx); doc != nil && doc.JWKSURI != "" {
		return doc.JWKSURI
	}
	return p.settings.jwksURL()
}

// discover fetches the discovery document once; failures are retried on the next call
func (p *Provider) discover(ctx context.Context) *discoveryDocument {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discovery != nil {
		return p.discovery
	}

	url := strings.TrimRight(p.settings.Issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil
	}
	p.discovery = &doc
	return p.discovery
}

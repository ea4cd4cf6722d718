package oidc

import (
	"context"

	"golang.org/x/oauth2"
)

// Client performs the server side of the authorization code flow for
// deployments where the app cannot hold the client secret.
type Client struct {
	config oauth2.Config
}

// NewClient creates a code exchange client against the discovered token endpoint
func NewClient(settings Settings, login *LoginConfig) *Client {
	return &Client{config: oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURL:  settings.RedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  login.AuthorizationEndpoint,
			TokenURL: login.TokenEndpoint,
		},
	}}
}

// ExchangeCode trades an authorization code for tokens. verifier is the PKCE
// code verifier the app generated, or empty when the login did not use PKCE.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	return c.config.Exchange(ctx, code, opts...)
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kevinmaint/maint-api/internal/services/oidc"
)

// LoginConfigProvider supplies the OIDC endpoints the mobile app logs in against
type LoginConfigProvider interface {
	GetLoginConfig(ctx context.Context) (*oidc.LoginConfig, error)
}

// CodeExchanger trades an authorization code, plus its PKCE verifier when the app used one, for tokens
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	provider  LoginConfigProvider
	exchanger CodeExchanger
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler. exchanger may be nil when the
// app performs the code exchange itself.
func NewAuthHandler(provider LoginConfigProvider, exchanger CodeExchanger, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, exchanger: exchanger, logger: logger}
}

// RegisterPublicRoutes registers the unauthenticated login routes.
// The router should already have the /api/v1/auth prefix.
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
	r.HandleFunc("/oidc/token", h.ExchangeToken).Methods("POST")
}

// RegisterRoutes registers auth routes that need a verified user
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// GetOIDCLogin returns OIDC configuration for the app
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	loginConfig, err := h.provider.GetLoginConfig(r.Context())
	if err != nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "OIDC login is not configured")
		return
	}

	respondJSON(w, http.StatusOK, loginConfig)
}

// ExchangeTokenRequest carries the authorization code returned to the app
type ExchangeTokenRequest struct {
	Code         string `json:"code" validate:"required,max=4096"`
	CodeVerifier string `json:"code_verifier,omitempty" validate:"omitempty,min=43,max=128"`
}

// TokenResponse is the subset of the provider's token response the app needs
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// ExchangeToken completes a confidential-client login on the app's behalf
func (h *AuthHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	if h.exchanger == nil {
		respondJSONError(w, http.StatusNotImplemented, "Not Implemented", "Server-side code exchange is disabled")
		return
	}

	var req ExchangeTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.exchanger.ExchangeCode(r.Context(), req.Code, req.CodeVerifier)
	if err != nil {
		h.logger.Info("oidc_code_exchange_failed", zap.Error(err))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Authorization code was rejected")
		return
	}

	resp := TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.Type(),
		RefreshToken: token.RefreshToken,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	if !token.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// Package flow integrates the external identity provider. Primary login and
// step-up re-authentication are both delegated: this package only drives the
// authorization-code exchange and maps verified ID token claims onto the
// session principal.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/portunusbank/portunus/config"
	"github.com/portunusbank/portunus/session"
)

// stepUpACR asks the provider for a second-factor assurance level during
// re-authentication.
const stepUpACR = "urn:okta:loa:2fa:any"

type OIDCManager struct {
	provider *oidc.Provider
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCManager discovers the provider's endpoints from its issuer URL.
func NewOIDCManager(ctx context.Context, cfg config.OIDCProvider) (*OIDCManager, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover provider %s: %w", cfg.Issuer, err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &OIDCManager{
		provider: provider,
		oauth:    oauthConfig,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthURL builds the authorization URL that starts a primary login.
func (m *OIDCManager) AuthURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// StepUpAuthURL builds the authorization URL for re-authentication. max_age=0
// forces the provider to actually re-challenge instead of silently reusing
// its own session.
func (m *OIDCManager) StepUpAuthURL(state string) string {
	return m.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("acr_values", stepUpACR),
		oauth2.SetAuthURLParam("max_age", "0"),
	)
}

// Authenticate exchanges the authorization code, verifies the ID token, and
// returns the authenticated principal.
func (m *OIDCManager) Authenticate(ctx context.Context, code string) (session.Principal, error) {
	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return session.Principal{}, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return session.Principal{}, errors.New("no id_token in token response")
	}

	idToken, err := m.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.Principal{}, fmt.Errorf("failed to verify id token: %w", err)
	}

	var claims struct {
		Subject           string   `json:"sub"`
		Email             string   `json:"email"`
		Emails            []string `json:"emails"`
		PreferredUsername string   `json:"preferred_username"`
		Name              string   `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return session.Principal{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	return session.Principal{
		Subject:           claims.Subject,
		Email:             claims.Email,
		Emails:            claims.Emails,
		PreferredUsername: claims.PreferredUsername,
		Name:              claims.Name,
	}, nil
}

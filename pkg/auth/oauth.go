package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/vijay-varadarajan/AutoAgent/internal/log"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

// TokenStore persists OAuth grants.
type TokenStore interface {
	TokenReader
	SaveTokens(rec models.TokenRecord) error
}

// Manager wraps the Google OAuth code flow and hands out refreshing token
// sources to capabilities. Refreshed access tokens are written back to the
// store so a later run does not start from an expired token.
type Manager struct {
	config *oauth2.Config
	store  TokenStore
}

func NewManager(clientID, clientSecret, redirectURL string, scopes []string, store TokenStore) *Manager {
	return &Manager{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		store: store,
	}
}

// AuthURL builds the consent URL for a user. The user id rides in the state
// parameter so the callback knows whose grant arrived.
func (m *Manager) AuthURL(userID string) string {
	return m.config.AuthCodeURL(userID, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens and persists them. The
// granted scope set comes from the token response, not from what we asked
// for: the user may have unticked scopes on the consent screen.
func (m *Manager) Exchange(ctx context.Context, userID, code string) (models.TokenRecord, error) {
	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		return models.TokenRecord{}, errors.Wrap(err, "exchanging authorization code")
	}

	scopes := m.config.Scopes
	if raw, ok := tok.Extra("scope").(string); ok && raw != "" {
		scopes = strings.Fields(raw)
	}

	rec := models.TokenRecord{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
	if err := m.store.SaveTokens(rec); err != nil {
		return models.TokenRecord{}, errors.Wrap(err, "saving tokens")
	}
	log.GetLogger().Infof("Stored Google grant for user %s with %d scopes", userID, len(scopes))
	return rec, nil
}

// TokenSource returns a refreshing token source for the user's stored
// grant. Fails when the user has no grant at all.
func (m *Manager) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	rec, err := m.store.GetTokens(userID)
	if err != nil {
		return nil, errors.Wrapf(err, "no Google tokens for user %s", userID)
	}
	base := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.Expiry,
	}
	return &persistingSource{
		userID: userID,
		store:  m.store,
		rec:    rec,
		src:    m.config.TokenSource(ctx, base),
	}, nil
}

// persistingSource writes refreshed access tokens back to the store.
type persistingSource struct {
	userID string
	store  TokenStore
	rec    models.TokenRecord
	src    oauth2.TokenSource
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.rec.AccessToken {
		p.rec.AccessToken = tok.AccessToken
		p.rec.Expiry = tok.Expiry
		if tok.RefreshToken != "" {
			p.rec.RefreshToken = tok.RefreshToken
		}
		if err := p.store.SaveTokens(p.rec); err != nil {
			log.GetLogger().Errorf("Failed to persist refreshed token for user %s: %v", p.userID, err)
		}
	}
	return tok, nil
}

package connect

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/flowdeck-app/flowdeck/app/models"
	"github.com/flowdeck-app/flowdeck/internal/pkg/apperr"
	"github.com/flowdeck-app/flowdeck/internal/pkg/oauthstate"
)

// Service drives the per-provider authorization-code flow: building consent
// URLs, completing callbacks, and managing the stored grants.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a connector service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a connector service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Authorize builds the provider consent URL for an already-authenticated user,
// embedding a state token that binds the later callback to this request.
func (s *Service) Authorize(userID uint, provider string) (string, error) {
	cfg, ok := ProviderFor(provider)
	if !ok {
		return "", apperr.New("unknown_provider", 400, "unknown integration provider")
	}
	if cfg.ClientID() == "" {
		return "", apperr.Wrap(errors.New(provider+" client id is unset"), apperr.ErrConfiguration, "not_configured")
	}

	state := oauthstate.Encode(userID, s.now())
	url, err := NewClient(cfg).AuthorizeURL(state)
	if err != nil {
		return "", apperr.Wrap(err, apperr.ErrConfiguration, "not_configured")
	}
	return url, nil
}

// Callback completes the flow for one provider redirect. The returned error's
// public code doubles as the integration_error redirect marker; nil means the
// grant was stored and the caller should emit the success marker.
func (s *Service) Callback(ctx context.Context, provider, code, state, providerError string) error {
	cfg, ok := ProviderFor(provider)
	if !ok {
		return apperr.New("callback_failed", 400, "unknown integration provider")
	}

	// The provider already reported a denial; nothing further to do.
	if providerError != "" {
		return apperr.New(providerError, 400, "provider returned an error")
	}

	// Validate state before any network call so an attacker-supplied code is
	// never exchanged on unvalidated input.
	userID, _, err := oauthstate.Decode(state, s.now())
	if err != nil {
		if errors.Is(err, oauthstate.ErrExpiredState) {
			return apperr.Wrap(err, apperr.ErrState, "state_expired")
		}
		return apperr.Wrap(err, apperr.ErrState, "invalid_state")
	}

	if code == "" {
		return apperr.New("missing_code", 400, "authorization code is missing")
	}
	if cfg.ClientID() == "" || cfg.ClientSecret() == "" {
		return apperr.Wrap(errors.New(provider+" credentials are unset"), apperr.ErrConfiguration, "not_configured")
	}

	client := NewClient(cfg)
	token, err := client.ExchangeCode(ctx, code)
	if err != nil {
		log.Printf("connect: %s token exchange failed for user %d: %v", provider, userID, err)
		return apperr.Wrap(err, apperr.ErrUpstream, "token_exchange_failed")
	}

	rec := &models.IntegrationRecord{
		UserID:       userID,
		Provider:     cfg.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ProviderData: string(token.Raw),
	}
	if token.ExpiresIn > 0 {
		t := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		rec.TokenExpiresAt = &t
	}

	// Profile fetch degrades gracefully: the grant is stored either way.
	if profile, err := client.FetchProfile(ctx, token.AccessToken, token); err != nil {
		log.Printf("connect: %s profile fetch failed for user %d: %v", provider, userID, err)
	} else {
		rec.ProviderUserID = profile.ProviderUserID
		rec.ProviderEmail = profile.Email
	}

	if err := s.repo.Upsert(rec); err != nil {
		return apperr.Wrap(err, apperr.ErrPersistence, "storage_failed")
	}
	return nil
}

// Status reports connected/disconnected per known provider.
func (s *Service) Status(userID uint) (map[string]bool, error) {
	recs, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrPersistence, "")
	}
	status := make(map[string]bool, 3)
	for _, p := range models.KnownIntegrationProviders() {
		status[p] = false
	}
	for _, rec := range recs {
		status[rec.Provider] = true
	}
	return status, nil
}

// Disconnect removes the stored grant for (user, provider).
func (s *Service) Disconnect(userID uint, provider string) error {
	if !models.IsKnownIntegrationProvider(provider) {
		return apperr.New("unknown_provider", 400, "unknown integration provider")
	}
	if _, err := s.repo.Delete(userID, provider); err != nil {
		return apperr.Wrap(err, apperr.ErrPersistence, "")
	}
	return nil
}

package connect

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
)

// refreshMargin renews tokens slightly before their recorded expiry so a
// caller never receives a token that dies mid-request.
const refreshMargin = 2 * time.Minute

// GetAccessToken returns a currently valid token for (user, provider), or ""
// when the provider is not connected. Expiring tokens are refreshed and
// persisted when the provider supports it; a failed refresh returns "" and
// leaves the stored grant untouched.
func (s *Service) GetAccessToken(ctx context.Context, userID uint, provider string) (string, error) {
	rec, err := s.repo.Find(userID, provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	// No recorded expiry means the token is treated as non-expiring.
	if rec.TokenExpiresAt == nil || s.now().Add(refreshMargin).Before(*rec.TokenExpiresAt) {
		return rec.AccessToken, nil
	}

	cfg, ok := ProviderFor(provider)
	if !ok || !cfg.SupportsRefresh || rec.RefreshToken == "" {
		// Expired with no way to renew; the stored access token is all we have.
		return rec.AccessToken, nil
	}

	token, err := NewClient(cfg).Refresh(ctx, rec.RefreshToken)
	if err != nil {
		log.Printf("connect: %s token refresh failed for user %d: %v", provider, userID, err)
		return "", nil
	}

	rec.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		// Providers may rotate the refresh token; keep the old one otherwise.
		rec.RefreshToken = token.RefreshToken
	}
	if token.ExpiresIn > 0 {
		t := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		rec.TokenExpiresAt = &t
	} else {
		rec.TokenExpiresAt = nil
	}

	if err := s.repo.Upsert(rec); err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

package oauthstate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

// TTL is how long a state token stays valid once issued.
const TTL = 5 * time.Minute

var (
	ErrInvalidState = errors.New("oauth state token is malformed")
	ErrExpiredState = errors.New("oauth state token has expired")
)

// The token is self-contained and unsigned; integrity rests on the redirect
// channel and the short TTL (see DESIGN.md for the signing trade-off).
type claims struct {
	UserID   uint  `json:"user_id"`
	IssuedAt int64 `json:"iat"`
}

// Encode packs the caller identity and issuance time into an opaque token for
// the provider redirect round trip.
func Encode(userID uint, now time.Time) string {
	payload, _ := json.Marshal(claims{UserID: userID, IssuedAt: now.Unix()})
	return base64.RawURLEncoding.EncodeToString(payload)
}

// Decode unpacks a state token and checks its validity window against now.
// Undecodable input fails with ErrInvalidState; a token older than TTL fails
// with ErrExpiredState.
func Decode(token string, now time.Time) (uint, time.Time, error) {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, time.Time{}, ErrInvalidState
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return 0, time.Time{}, ErrInvalidState
	}
	if c.UserID == 0 || c.IssuedAt == 0 {
		return 0, time.Time{}, ErrInvalidState
	}
	issuedAt := time.Unix(c.IssuedAt, 0)
	if now.Sub(issuedAt) > TTL {
		return 0, time.Time{}, ErrExpiredState
	}
	return c.UserID, issuedAt, nil
}

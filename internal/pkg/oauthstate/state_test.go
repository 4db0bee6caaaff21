package oauthstate

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, userID := range []uint{1, 42, 90210} {
		token := Encode(userID, issued)

		gotUser, gotIssued, err := Decode(token, issued.Add(10*time.Second))
		if err != nil {
			t.Fatalf("Decode(Encode(%d)) failed: %v", userID, err)
		}
		if gotUser != userID {
			t.Fatalf("Decode returned user %d, want %d", gotUser, userID)
		}
		if !gotIssued.Equal(issued) {
			t.Fatalf("Decode returned issuedAt %v, want %v", gotIssued, issued)
		}
	}
}

func TestDecodeExpiryBoundary(t *testing.T) {
	issued := time.Now()
	token := Encode(7, issued)

	if _, _, err := Decode(token, issued.Add(299*time.Second)); err != nil {
		t.Fatalf("token at +299s should be accepted, got %v", err)
	}
	if _, _, err := Decode(token, issued.Add(301*time.Second)); !errors.Is(err, ErrExpiredState) {
		t.Fatalf("token at +301s should be expired, got %v", err)
	}
}

func TestDecodeInvalidInput(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not base64", token: "%%%"},
		{name: "not json", token: base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{name: "missing user", token: base64.RawURLEncoding.EncodeToString([]byte(`{"iat":123}`))},
		{name: "missing iat", token: base64.RawURLEncoding.EncodeToString([]byte(`{"user_id":1}`))},
	}

	for _, tt := range tests {
		if _, _, err := Decode(tt.token, now); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%s: expected ErrInvalidState, got %v", tt.name, err)
		}
	}
}

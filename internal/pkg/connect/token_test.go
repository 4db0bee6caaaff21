package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeck-app/flowdeck/app/models"
)

func seedGrant(t *testing.T, repo *fakeRepo, rec models.IntegrationRecord) {
	t.Helper()
	require.NoError(t, repo.Upsert(&rec))
}

func TestGetAccessTokenNotConnected(t *testing.T) {
	svc := newTestService(newFakeRepo(), time.Now())

	token, err := svc.GetAccessToken(context.Background(), 7, "google")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestGetAccessTokenFreshTokenReturnedAsIs(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Hour)
	repo := newFakeRepo()
	seedGrant(t, repo, models.IntegrationRecord{
		UserID: 7, Provider: "google", AccessToken: "at-1", TokenExpiresAt: &expires,
	})
	svc := newTestService(repo, now)

	token, err := svc.GetAccessToken(context.Background(), 7, "google")
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)
}

func TestGetAccessTokenNoExpiryMeansNonExpiring(t *testing.T) {
	repo := newFakeRepo()
	seedGrant(t, repo, models.IntegrationRecord{
		UserID: 7, Provider: "notion", AccessToken: "at-n",
	})
	svc := newTestService(repo, time.Now())

	token, err := svc.GetAccessToken(context.Background(), 7, "notion")
	require.NoError(t, err)
	assert.Equal(t, "at-n", token)
}

func TestGetAccessTokenExpiringWithoutRefreshSupport(t *testing.T) {
	now := time.Now()
	expires := now.Add(time.Minute) // inside the refresh margin
	repo := newFakeRepo()
	seedGrant(t, repo, models.IntegrationRecord{
		UserID: 7, Provider: "slack", AccessToken: "at-s", TokenExpiresAt: &expires,
	})
	svc := newTestService(repo, now)

	token, err := svc.GetAccessToken(context.Background(), 7, "slack")
	require.NoError(t, err)
	assert.Equal(t, "at-s", token)
}

func TestGetAccessTokenRefreshesExpiringGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "rt-1", r.PostFormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600}`))
	}))
	defer srv.Close()

	t.Setenv("GOOGLE_CLIENT_ID", "client-123")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret-456")
	t.Setenv("GOOGLE_TOKEN_URL", srv.URL)

	now := time.Now().Truncate(time.Second)
	expires := now.Add(time.Minute)
	repo := newFakeRepo()
	seedGrant(t, repo, models.IntegrationRecord{
		UserID: 7, Provider: "google",
		AccessToken: "at-1", RefreshToken: "rt-1", TokenExpiresAt: &expires,
	})
	svc := newTestService(repo, now)

	token, err := svc.GetAccessToken(context.Background(), 7, "google")
	require.NoError(t, err)
	assert.Equal(t, "at-2", token)

	rec, err := repo.Find(7, "google")
	require.NoError(t, err)
	assert.Equal(t, "at-2", rec.AccessToken)
	// The provider did not rotate the refresh token, so the old one is kept.
	assert.Equal(t, "rt-1", rec.RefreshToken)
	require.NotNil(t, rec.TokenExpiresAt)
	assert.Equal(t, now.Add(time.Hour).Unix(), rec.TokenExpiresAt.Unix())
}

func TestGetAccessTokenAdoptsRotatedRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","expires_in":3600}`))
	}))
	defer srv.Close()

	t.Setenv("GOOGLE_CLIENT_ID", "client-123")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret-456")
	t.Setenv("GOOGLE_TOKEN_URL", srv.URL)

	now := time.Now()
	expires := now.Add(30 * time.Second)
	repo := newFakeRepo()
	seedGrant(t, repo, models.IntegrationRecord{
		UserID: 7, Provider: "google",
		AccessToken: "at-1", RefreshToken: "rt-1", TokenExpiresAt: &expires,
	})
	svc := newTestService(repo, now)

	_, err := svc.GetAccessToken(context.Background(), 7, "google")
	require.NoError(t, err)

	rec, err := repo.Find(7, "google")
	require.NoError(t, err)
	assert.Equal(t, "rt-2", rec.RefreshToken)
}

func TestGetAccessTokenFailedRefreshLeavesGrantUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	t.Setenv("GOOGLE_CLIENT_ID", "client-123")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret-456")
	t.Setenv("GOOGLE_TOKEN_URL", srv.URL)

	now := time.Now()
	expires := now.Add(time.Minute)
	repo := newFakeRepo()
	seedGrant(t, repo, models.IntegrationRecord{
		UserID: 7, Provider: "google",
		AccessToken: "at-1", RefreshToken: "rt-1", TokenExpiresAt: &expires,
	})
	svc := newTestService(repo, now)

	token, err := svc.GetAccessToken(context.Background(), 7, "google")
	require.NoError(t, err)
	assert.Empty(t, token)

	rec, err := repo.Find(7, "google")
	require.NoError(t, err)
	assert.Equal(t, "at-1", rec.AccessToken)
	assert.Equal(t, "rt-1", rec.RefreshToken)
}

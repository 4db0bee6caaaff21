package connect

import (
	"strings"

	"github.com/flowdeck-app/flowdeck/app/models"
	"github.com/flowdeck-app/flowdeck/internal/pkg/env"
)

// AuthStyle selects how client credentials travel to the token endpoint.
type AuthStyle int

const (
	// AuthStyleBody sends client_id/client_secret as form fields.
	AuthStyleBody AuthStyle = iota
	// AuthStyleBasic sends them as an HTTP Basic Authorization header.
	AuthStyleBasic
)

// ProviderConfig describes one OAuth provider. Provider differences are data,
// not code: the connector runs a single flow over this closed table.
type ProviderConfig struct {
	Name            string
	AuthorizeURL    string
	TokenURL        string
	Scopes          []string
	ExtraAuthParams map[string]string
	ProfileURL      string
	AuthStyle       AuthStyle
	SupportsRefresh bool

	clientIDEnv     string
	clientSecretEnv string
}

// ProviderFor returns the resolved configuration for a known provider name.
// Endpoint URLs honor env overrides the same way the rest of the config does,
// which is also what lets tests point the flow at a local server.
func ProviderFor(name string) (*ProviderConfig, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case models.IntegrationProviderGoogle:
		return &ProviderConfig{
			Name:         models.IntegrationProviderGoogle,
			AuthorizeURL: env.GetEnv("GOOGLE_AUTHORIZE_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
			TokenURL:     env.GetEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/gmail.send",
				"https://www.googleapis.com/auth/calendar.events",
			},
			// Google only issues a refresh token for offline, re-consented grants.
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
			ProfileURL:      env.GetEnv("GOOGLE_PROFILE_URL", "https://www.googleapis.com/oauth2/v2/userinfo"),
			AuthStyle:       AuthStyleBody,
			SupportsRefresh: true,
			clientIDEnv:     "GOOGLE_CLIENT_ID",
			clientSecretEnv: "GOOGLE_CLIENT_SECRET",
		}, true
	case models.IntegrationProviderSlack:
		return &ProviderConfig{
			Name:            models.IntegrationProviderSlack,
			AuthorizeURL:    env.GetEnv("SLACK_AUTHORIZE_URL", "https://slack.com/oauth/v2/authorize"),
			TokenURL:        env.GetEnv("SLACK_TOKEN_URL", "https://slack.com/api/oauth.v2.access"),
			Scopes:          []string{"chat:write", "channels:read", "users:read"},
			ProfileURL:      env.GetEnv("SLACK_PROFILE_URL", "https://slack.com/api/auth.test"),
			AuthStyle:       AuthStyleBody,
			SupportsRefresh: false,
			clientIDEnv:     "SLACK_CLIENT_ID",
			clientSecretEnv: "SLACK_CLIENT_SECRET",
		}, true
	case models.IntegrationProviderNotion:
		return &ProviderConfig{
			Name:         models.IntegrationProviderNotion,
			AuthorizeURL: env.GetEnv("NOTION_AUTHORIZE_URL", "https://api.notion.com/v1/oauth/authorize"),
			TokenURL:     env.GetEnv("NOTION_TOKEN_URL", "https://api.notion.com/v1/oauth/token"),
			ExtraAuthParams: map[string]string{
				"owner": "user",
			},
			// Notion returns workspace/owner data inside the token response,
			// so there is no separate profile endpoint.
			AuthStyle:       AuthStyleBasic,
			SupportsRefresh: false,
			clientIDEnv:     "NOTION_CLIENT_ID",
			clientSecretEnv: "NOTION_CLIENT_SECRET",
		}, true
	default:
		return nil, false
	}
}

// ClientID resolves the provider's client id from the environment.
func (p *ProviderConfig) ClientID() string {
	return strings.TrimSpace(env.GetEnv(p.clientIDEnv, ""))
}

// ClientSecret resolves the provider's client secret from the environment.
func (p *ProviderConfig) ClientSecret() string {
	return strings.TrimSpace(env.GetEnv(p.clientSecretEnv, ""))
}

// RedirectURI returns the callback URL registered with the provider.
func (p *ProviderConfig) RedirectURI() string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return base + "/api/integrations/" + p.Name + "/callback"
}

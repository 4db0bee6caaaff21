package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client drives the authorization-code flow for a single provider entry from
// the config table.
type Client struct {
	Config *ProviderConfig

	HTTPClient *http.Client
}

// TokenResponse is the normalized token-endpoint reply. Raw keeps the exact
// provider body for provider_data storage.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`

	Raw []byte `json:"-"`
}

// Profile is the subset of provider identity data the connector persists.
type Profile struct {
	ProviderUserID string
	Email          string
}

func NewClient(cfg *ProviderConfig) *Client {
	return &Client{
		Config: cfg,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AuthorizeURL builds the provider consent URL carrying the given state.
func (c *Client) AuthorizeURL(state string) (string, error) {
	if c.Config.ClientID() == "" {
		return "", fmt.Errorf("%s client id is not configured", c.Config.Name)
	}
	u, err := url.Parse(c.Config.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize URL for %s: %w", c.Config.Name, err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.Config.ClientID())
	q.Set("redirect_uri", c.Config.RedirectURI())
	if len(c.Config.Scopes) > 0 {
		q.Set("scope", strings.Join(c.Config.Scopes, " "))
	}
	for k, v := range c.Config.ExtraAuthParams {
		q.Set(k, v)
	}
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode trades an authorization code for tokens at the provider's
// token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	form.Set("redirect_uri", c.Config.RedirectURI())
	return c.tokenRequest(ctx, form)
}

// Refresh trades a refresh token for a renewed access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if !c.Config.SupportsRefresh {
		return nil, fmt.Errorf("%s does not support token refresh", c.Config.Name)
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", strings.TrimSpace(refreshToken))
	return c.tokenRequest(ctx, form)
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	clientID, clientSecret := c.Config.ClientID(), c.Config.ClientSecret()
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%s client credentials are not configured", c.Config.Name)
	}
	if c.Config.AuthStyle == AuthStyleBody {
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.Config.AuthStyle == AuthStyleBasic {
		req.SetBasicAuth(clientID, clientSecret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s token request failed: status=%d body=%s", c.Config.Name, resp.StatusCode, string(body))
	}

	out := &TokenResponse{Raw: body}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		// Slack in particular reports failures as 200 {"ok":false,...}.
		return nil, fmt.Errorf("%s token request returned no access_token: %s", c.Config.Name, string(body))
	}
	return out, nil
}

// FetchProfile loads the provider identity for a fresh grant. Providers
// without a profile endpoint (Notion) answer from the token response body.
func (c *Client) FetchProfile(ctx context.Context, accessToken string, token *TokenResponse) (*Profile, error) {
	if c.Config.ProfileURL == "" {
		return parseEmbeddedProfile(c.Config.Name, token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Config.ProfileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s profile request failed: status=%d body=%s", c.Config.Name, resp.StatusCode, string(body))
	}
	return parseProfile(c.Config.Name, body)
}

func parseProfile(provider string, body []byte) (*Profile, error) {
	switch provider {
	case "google":
		var raw struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
		return &Profile{ProviderUserID: raw.ID, Email: raw.Email}, nil
	case "slack":
		var raw struct {
			OK     bool   `json:"ok"`
			UserID string `json:"user_id"`
			User   string `json:"user"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
		if !raw.OK {
			return nil, fmt.Errorf("slack profile request not ok: %s", string(body))
		}
		return &Profile{ProviderUserID: raw.UserID}, nil
	default:
		return nil, fmt.Errorf("no profile parser for provider %s", provider)
	}
}

func parseEmbeddedProfile(provider string, token *TokenResponse) (*Profile, error) {
	if provider != "notion" {
		return nil, fmt.Errorf("provider %s has no embedded profile", provider)
	}
	var raw struct {
		Owner struct {
			User struct {
				ID     string `json:"id"`
				Person struct {
					Email string `json:"email"`
				} `json:"person"`
			} `json:"user"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(token.Raw, &raw); err != nil {
		return nil, err
	}
	if raw.Owner.User.ID == "" {
		return nil, errors.New("notion token response missing owner user id")
	}
	return &Profile{ProviderUserID: raw.Owner.User.ID, Email: raw.Owner.User.Person.Email}, nil
}

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"authgate/internal/config"
)

type GoogleProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthEndpoint     string
	TokenEndpoint    string
	UserInfoEndpoint string

	HTTP *http.Client
}

func NewGoogleProvider(cfg config.OAuthProvider) *GoogleProvider {
	return &GoogleProvider{
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		RedirectURL:      cfg.RedirectURL,
		AuthEndpoint:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:    "https://oauth2.googleapis.com/token",
		UserInfoEndpoint: "https://www.googleapis.com/oauth2/v2/userinfo",
		HTTP:             &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthURL(state string) string {
	u, _ := url.Parse(p.AuthEndpoint)
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	return exchangeCode(ctx, p.HTTP, p.TokenEndpoint, url.Values{
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.RedirectURL},
		"grant_type":    {"authorization_code"},
	})
}

func (p *GoogleProvider) FetchUser(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var data struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrProviderUnavailable, err)
	}
	if data.ID == "" || data.Email == "" {
		return nil, fmt.Errorf("%w: incomplete userinfo", ErrProviderUnavailable)
	}

	return &UserInfo{ID: data.ID, Email: data.Email, Name: data.Name}, nil
}

func exchangeCode(ctx context.Context, client *http.Client, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token exchange status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrProviderUnavailable, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: missing access token", ErrProviderUnavailable)
	}
	return tok.AccessToken, nil
}

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"authgate/internal/config"
)

type GitHubProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthEndpoint  string
	TokenEndpoint string
	APIEndpoint   string

	HTTP *http.Client
}

func NewGitHubProvider(cfg config.OAuthProvider) *GitHubProvider {
	return &GitHubProvider{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURL:   cfg.RedirectURL,
		AuthEndpoint:  "https://github.com/login/oauth/authorize",
		TokenEndpoint: "https://github.com/login/oauth/access_token",
		APIEndpoint:   "https://api.github.com",
		HTTP:          &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthURL(state string) string {
	u, _ := url.Parse(p.AuthEndpoint)
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("scope", "user:email")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	return exchangeCode(ctx, p.HTTP, p.TokenEndpoint, url.Values{
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.RedirectURL},
	})
}

func (p *GitHubProvider) FetchUser(ctx context.Context, accessToken string) (*UserInfo, error) {
	var data struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := p.getJSON(ctx, accessToken, "/user", &data); err != nil {
		return nil, err
	}
	if data.ID == 0 {
		return nil, fmt.Errorf("%w: incomplete user profile", ErrProviderUnavailable)
	}

	email := data.Email
	if email == "" {
		email = p.primaryEmail(ctx, accessToken)
	}
	// GitHub users can hide their email entirely. A synthetic address keeps
	// the account addressable; it never matches a real registered email.
	if email == "" {
		email = data.Login + "@github.local"
	}

	name := data.Name
	if name == "" {
		name = data.Login
	}

	return &UserInfo{
		ID:    fmt.Sprintf("%d", data.ID),
		Email: email,
		Name:  name,
	}, nil
}

func (p *GitHubProvider) primaryEmail(ctx context.Context, accessToken string) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, accessToken, "/user/emails", &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

func (p *GitHubProvider) getJSON(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.APIEndpoint+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s status %d", ErrProviderUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderUnavailable, path, err)
	}
	return nil
}

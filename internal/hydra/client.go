// Package hydra talks to the ORY Hydra admin API to fetch and complete
// login, consent, and logout requests.
package hydra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrUnavailable wraps every failure to get a usable answer out of the
// admin API: transport errors, non-2xx statuses, and unparseable bodies.
var ErrUnavailable = errors.New("authorization server unavailable")

const (
	// Session lifetime granted with every accepted login, in seconds.
	rememberFor = 3600
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type ClientInfo struct {
	ClientID string `json:"client_id"`
	Name     string `json:"client_name"`
}

type LoginRequest struct {
	Challenge      string     `json:"challenge"`
	Skip           bool       `json:"skip"`
	Subject        string     `json:"subject"`
	Client         ClientInfo `json:"client"`
	RequestURL     string     `json:"request_url"`
	RequestedScope []string   `json:"requested_scope"`
	SessionID      string     `json:"session_id"`
}

type ConsentRequest struct {
	Challenge                    string     `json:"challenge"`
	Skip                         bool       `json:"skip"`
	Subject                      string     `json:"subject"`
	Client                       ClientInfo `json:"client"`
	RequestedScope               []string   `json:"requested_scope"`
	RequestedAccessTokenAudience []string   `json:"requested_access_token_audience"`
}

type LogoutRequest struct {
	Challenge string `json:"challenge"`
	Subject   string `json:"subject"`
	SID       string `json:"sid"`
}

type redirectResponse struct {
	RedirectTo string `json:"redirect_to"`
}

type acceptLoginBody struct {
	Subject     string `json:"subject"`
	Remember    bool   `json:"remember"`
	RememberFor int    `json:"remember_for"`
}

type acceptConsentBody struct {
	GrantScope               []string       `json:"grant_scope"`
	GrantAccessTokenAudience []string       `json:"grant_access_token_audience"`
	Remember                 bool           `json:"remember"`
	RememberFor              int            `json:"remember_for"`
	Session                  map[string]any `json:"session"`
}

type rejectBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) GetLoginRequest(ctx context.Context, challenge string) (*LoginRequest, error) {
	var out LoginRequest
	if err := c.get(ctx, "login", "login_challenge", challenge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptLogin(ctx context.Context, challenge, subject string) (string, error) {
	return c.accept(ctx, "login", "login_challenge", challenge, acceptLoginBody{
		Subject:     subject,
		Remember:    true,
		RememberFor: rememberFor,
	})
}

func (c *Client) RejectLogin(ctx context.Context, challenge, errCode, description string) (string, error) {
	return c.put(ctx, "login/reject", "login_challenge", challenge, rejectBody{
		Error:            errCode,
		ErrorDescription: description,
	})
}

func (c *Client) GetConsentRequest(ctx context.Context, challenge string) (*ConsentRequest, error) {
	var out ConsentRequest
	if err := c.get(ctx, "consent", "consent_challenge", challenge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptConsent(ctx context.Context, challenge string, grantScope, grantAudience []string) (string, error) {
	if grantScope == nil {
		grantScope = []string{}
	}
	if grantAudience == nil {
		grantAudience = []string{}
	}
	return c.accept(ctx, "consent", "consent_challenge", challenge, acceptConsentBody{
		GrantScope:               grantScope,
		GrantAccessTokenAudience: grantAudience,
		Remember:                 true,
		RememberFor:              rememberFor,
		Session:                  map[string]any{},
	})
}

func (c *Client) RejectConsent(ctx context.Context, challenge, errCode, description string) (string, error) {
	return c.put(ctx, "consent/reject", "consent_challenge", challenge, rejectBody{
		Error:            errCode,
		ErrorDescription: description,
	})
}

func (c *Client) GetLogoutRequest(ctx context.Context, challenge string) (*LogoutRequest, error) {
	var out LogoutRequest
	if err := c.get(ctx, "logout", "logout_challenge", challenge, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AcceptLogout(ctx context.Context, challenge string) (string, error) {
	return c.accept(ctx, "logout", "logout_challenge", challenge, map[string]any{})
}

func (c *Client) RejectLogout(ctx context.Context, challenge, errCode, description string) (string, error) {
	return c.put(ctx, "logout/reject", "logout_challenge", challenge, rejectBody{
		Error:            errCode,
		ErrorDescription: description,
	})
}

func (c *Client) requestURL(flow, param, challenge string) string {
	return fmt.Sprintf("%s/admin/oauth2/auth/requests/%s?%s=%s",
		c.BaseURL, flow, param, url.QueryEscape(challenge))
}

func (c *Client) get(ctx context.Context, flow, param, challenge string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(flow, param, challenge), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c.do(req, out)
}

func (c *Client) accept(ctx context.Context, flow, param, challenge string, body any) (string, error) {
	return c.put(ctx, flow+"/accept", param, challenge, body)
}

func (c *Client) put(ctx context.Context, action, param, challenge string, body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.requestURL(action, param, challenge), bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out redirectResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.RedirectTo == "" {
		return "", fmt.Errorf("%w: missing redirect_to in %s response", ErrUnavailable, action)
	}
	return out.RedirectTo, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d from %s", ErrUnavailable, resp.StatusCode, req.URL.Path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

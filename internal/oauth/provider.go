// Package oauth implements the outbound side of social sign-in: provider
// adapters for the authorization-code flow and the encrypted state
// parameter that survives the round trip.
package oauth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotConfigured means the requested provider has no credentials.
	ErrNotConfigured = errors.New("oauth provider not configured")

	// ErrProviderUnavailable covers exchange and profile-fetch failures.
	ErrProviderUnavailable = errors.New("oauth provider unavailable")
)

// UserInfo is the provider-agnostic profile extract. Email is never empty:
// adapters substitute a placeholder when the provider withholds it.
type UserInfo struct {
	ID    string
	Email string
	Name  string
}

type Provider interface {
	Name() string
	// AuthURL builds the provider authorization URL carrying state.
	AuthURL(state string) string
	// ExchangeCode trades the callback code for an access token.
	ExchangeCode(ctx context.Context, code string) (string, error)
	// FetchUser loads the profile behind an access token.
	FetchUser(ctx context.Context, accessToken string) (*UserInfo, error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[strings.ToLower(p.Name())] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, ErrNotConfigured
	}
	return p, nil
}

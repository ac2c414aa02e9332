package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"authgate/internal/oauth"
)

type stubProvider struct {
	exchangeErr error
	user        *oauth.UserInfo
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) AuthURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) ExchangeCode(_ context.Context, code string) (string, error) {
	if p.exchangeErr != nil {
		return "", p.exchangeErr
	}
	return "token-for-" + code, nil
}

func (p *stubProvider) FetchUser(_ context.Context, accessToken string) (*oauth.UserInfo, error) {
	if !strings.HasPrefix(accessToken, "token-for-") {
		return nil, fmt.Errorf("%w: bad token", oauth.ErrProviderUnavailable)
	}
	return p.user, nil
}

func TestOAuthStart(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	env.srv.Providers = oauth.NewRegistry(&stubProvider{})
	env.handler = env.srv.Router()

	rec := env.get(t, "/api/oauth/stub?login_challenge=ch-7")
	require.Equal(t, http.StatusOK, rec.Code)

	authURL := decodeBody(t, rec)["auth_url"].(string)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "provider.test", parsed.Host)

	// The state carries the challenge, recoverable only with our key.
	challenge, err := env.srv.States.Decode(parsed.Query().Get("state"))
	require.NoError(t, err)
	require.Equal(t, "ch-7", challenge)
}

func TestOAuthStartUnknownProvider(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")

	rec := env.get(t, "/api/oauth/missing?login_challenge=ch-7")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOAuthStartMissingChallenge(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	env.srv.Providers = oauth.NewRegistry(&stubProvider{})
	env.handler = env.srv.Router()

	rec := env.get(t, "/api/oauth/stub")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackCreatesUser(t *testing.T) {
	stub := &hydraStub{}
	hs := stub.server(t)
	defer hs.Close()

	env := newTestEnv(t, hs.URL)
	env.srv.Providers = oauth.NewRegistry(&stubProvider{
		user: &oauth.UserInfo{ID: "prov-1", Email: "carol@example.com", Name: "Carol"},
	})
	env.handler = env.srv.Router()

	state, err := env.srv.States.Encode("ch-7")
	require.NoError(t, err)

	rec := env.get(t, "/api/oauth/stub/callback?code=abc&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, rec.Code)

	user, err := env.store.FindByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Nil(t, user.PasswordHash)
	require.Equal(t, "https://hydra/after-login/"+user.ID, rec.Header().Get("Location"))

	linked, err := env.store.FindBySocial(context.Background(), "stub", "prov-1")
	require.NoError(t, err)
	require.NotNil(t, linked)
	require.Equal(t, user.ID, linked.ID)
}

func TestOAuthCallbackLinksExistingAccount(t *testing.T) {
	stub := &hydraStub{}
	hs := stub.server(t)
	defer hs.Close()

	env := newTestEnv(t, hs.URL)
	env.srv.Providers = oauth.NewRegistry(&stubProvider{
		user: &oauth.UserInfo{ID: "prov-1", Email: "alice@example.com"},
	})
	env.handler = env.srv.Router()
	existing := env.addUser(t, "alice@example.com", "Str0ngPass")

	state, err := env.srv.States.Encode("ch-7")
	require.NoError(t, err)

	rec := env.get(t, "/api/oauth/stub/callback?code=abc&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://hydra/after-login/"+existing.ID, rec.Header().Get("Location"))

	linked, err := env.store.FindBySocial(context.Background(), "stub", "prov-1")
	require.NoError(t, err)
	require.NotNil(t, linked)
	require.Equal(t, existing.ID, linked.ID)
}

func TestOAuthCallbackTamperedState(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	env.srv.Providers = oauth.NewRegistry(&stubProvider{})
	env.handler = env.srv.Router()

	rec := env.get(t, "/api/oauth/stub/callback?code=abc&state=bm90LWEtcmVhbC1zdGF0ZQ")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid request", decodeBody(t, rec)["message"])
}

func TestOAuthCallbackMissingParams(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	env.srv.Providers = oauth.NewRegistry(&stubProvider{})
	env.handler = env.srv.Router()

	rec := env.get(t, "/api/oauth/stub/callback?code=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/oauth/stub/callback?state=xyz")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackProviderDown(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:0")
	env.srv.Providers = oauth.NewRegistry(&stubProvider{
		exchangeErr: fmt.Errorf("%w: connection refused", oauth.ErrProviderUnavailable),
	})
	env.handler = env.srv.Router()

	state, err := env.srv.States.Encode("ch-7")
	require.NoError(t, err)

	rec := env.get(t, "/api/oauth/stub/callback?code=abc&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

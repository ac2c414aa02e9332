package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("login_challenge")
	if challenge == "" {
		writeError(w, http.StatusBadRequest, "login_challenge is required")
		return
	}

	provider, err := s.Providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeAppError(w, "oauth start", err)
		return
	}

	state, err := s.States.Encode(challenge)
	if err != nil {
		writeAppError(w, "oauth start", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": provider.AuthURL(state),
	})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	provider, err := s.Providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeAppError(w, "oauth callback", err)
		return
	}

	// The state parameter is the encrypted login challenge; anything that
	// fails to decrypt was not minted by us.
	challenge, err := s.States.Decode(state)
	if err != nil {
		writeAppError(w, "oauth callback", err)
		return
	}

	ctx := r.Context()
	accessToken, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		writeAppError(w, "oauth callback", err)
		return
	}
	info, err := provider.FetchUser(ctx, accessToken)
	if err != nil {
		writeAppError(w, "oauth callback", err)
		return
	}

	user, err := s.Resolver.Resolve(ctx, provider.Name(), info.ID, info.Email)
	if err != nil {
		writeAppError(w, "oauth callback", err)
		return
	}

	redirect, err := s.Hydra.AcceptLogin(ctx, challenge, user.ID)
	if err != nil {
		writeAppError(w, "oauth callback", err)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

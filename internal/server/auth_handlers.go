package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"authgate/internal/auth"
)

type loginRequest struct {
	LoginChallenge string `json:"login_challenge"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Code           string `json:"code,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LoginChallenge == "" {
		writeError(w, http.StatusBadRequest, "login_challenge is required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if s.RateLimiter.IsIPBanned(ctx, ip) {
		writeError(w, http.StatusTooManyRequests, "Too many failed attempts. Try again later.")
		return
	}

	lr, err := s.Hydra.GetLoginRequest(ctx, req.LoginChallenge)
	if err != nil {
		writeAppError(w, "login", err)
		return
	}

	// The authorization server already has a remembered session for this
	// subject; no credentials are needed.
	if lr.Skip {
		redirect, err := s.Hydra.AcceptLogin(ctx, req.LoginChallenge, lr.Subject)
		if err != nil {
			writeAppError(w, "login", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirect_to": redirect})
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := s.Verifier.Verify(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			if rlErr := s.RateLimiter.RegisterLoginFailure(ctx, ip); rlErr != nil {
				log.Printf("login: rate limiter update failed: %v", rlErr)
			}
		}
		writeAppError(w, "login", err)
		return
	}

	sec, err := s.TwoFactor.Get(ctx, user.ID)
	if err != nil {
		writeAppError(w, "login", err)
		return
	}
	if sec != nil && sec.Enabled {
		if req.Code == "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"requires_2fa": true,
				"user_id":      user.ID,
			})
			return
		}
		if err := s.checkTwoFactorCode(r, user.ID, sec, req.Code); err != nil {
			writeAppError(w, "login", err)
			return
		}
	}

	redirect, err := s.Hydra.AcceptLogin(ctx, req.LoginChallenge, user.ID)
	if err != nil {
		writeAppError(w, "login", err)
		return
	}
	s.RateLimiter.ResetLogin(ctx, ip)

	writeJSON(w, http.StatusOK, map[string]string{"redirect_to": redirect})
}

// checkTwoFactorCode decrypts the stored secret and validates the code,
// feeding the per-user attempt counter on failure.
func (s *Server) checkTwoFactorCode(r *http.Request, userID string, sec *auth.TwoFactorSecret, code string) error {
	ctx := r.Context()

	secret, err := s.TOTP.DecryptSecret(sec.SecretEncrypted)
	if err != nil {
		return err
	}
	if !s.TOTP.VerifyCode(secret, code) {
		if locked, rlErr := s.RateLimiter.Register2FAFailure(ctx, userID); rlErr != nil {
			log.Printf("2fa: rate limiter update failed: %v", rlErr)
		} else if locked {
			log.Printf("2fa: user %s locked out after repeated failures", userID)
		}
		return auth.ErrTotpInvalid
	}
	s.RateLimiter.Reset2FA(ctx, userID)
	return nil
}

type consentRequest struct {
	ConsentChallenge string   `json:"consent_challenge"`
	GrantScope       []string `json:"grant_scope"`
}

func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConsentChallenge == "" {
		writeError(w, http.StatusBadRequest, "consent_challenge is required")
		return
	}

	ctx := r.Context()
	cr, err := s.Hydra.GetConsentRequest(ctx, req.ConsentChallenge)
	if err != nil {
		writeAppError(w, "consent", err)
		return
	}

	grant := req.GrantScope
	if cr.Skip {
		// A remembered consent grants whatever the client asked for.
		grant = cr.RequestedScope
	} else if !scopeSubset(grant, cr.RequestedScope) {
		writeError(w, http.StatusBadRequest, "Granted scopes exceed the requested scopes")
		return
	}

	redirect, err := s.Hydra.AcceptConsent(ctx, req.ConsentChallenge, grant, cr.RequestedAccessTokenAudience)
	if err != nil {
		writeAppError(w, "consent", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"redirect_to": redirect})
}

func scopeSubset(grant, requested []string) bool {
	allowed := make(map[string]bool, len(requested))
	for _, sc := range requested {
		allowed[sc] = true
	}
	for _, sc := range grant {
		if !allowed[sc] {
			return false
		}
	}
	return true
}

type logoutRequest struct {
	LogoutChallenge string `json:"logout_challenge"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LogoutChallenge == "" {
		writeError(w, http.StatusBadRequest, "logout_challenge is required")
		return
	}

	ctx := r.Context()
	if _, err := s.Hydra.GetLogoutRequest(ctx, req.LogoutChallenge); err != nil {
		writeAppError(w, "logout", err)
		return
	}

	redirect, err := s.Hydra.AcceptLogout(ctx, req.LogoutChallenge)
	if err != nil {
		writeAppError(w, "logout", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"redirect_to": redirect})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if locked, err := s.RateLimiter.RegisterRegisterAttempt(ctx, ip); err != nil {
		log.Printf("register: rate limiter update failed: %v", err)
	} else if locked {
		writeError(w, http.StatusTooManyRequests, "Too many registrations. Try again later.")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validateEmail(email) {
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if err := validatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hashed, err := s.Hasher.Hash(req.Password)
	if err != nil {
		writeAppError(w, "register", err)
		return
	}

	user, err := s.Users.Create(ctx, email, &hashed)
	if err != nil {
		writeAppError(w, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

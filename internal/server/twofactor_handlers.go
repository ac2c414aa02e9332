package server

import (
	"net/http"

	"authgate/internal/auth"
)

type twoFactorSetupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	var req twoFactorSetupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "user_id and password are required")
		return
	}

	ctx := r.Context()
	user, err := s.verifyUserPassword(r, req.UserID, req.Password)
	if err != nil {
		writeAppError(w, "2fa setup", err)
		return
	}

	sec, err := s.TwoFactor.Get(ctx, user.ID)
	if err != nil {
		writeAppError(w, "2fa setup", err)
		return
	}
	if sec != nil && sec.Enabled {
		writeAppError(w, "2fa setup", auth.ErrTotpAlreadyEnabled)
		return
	}

	// A pending enrollment is replaced wholesale; only confirmation via
	// /api/2fa/verify makes a secret stick.
	secret, err := s.TOTP.GenerateSecret()
	if err != nil {
		writeAppError(w, "2fa setup", err)
		return
	}
	encrypted, err := s.TOTP.EncryptSecret(secret)
	if err != nil {
		writeAppError(w, "2fa setup", err)
		return
	}
	if err := s.TwoFactor.SavePending(ctx, user.ID, encrypted); err != nil {
		writeAppError(w, "2fa setup", err)
		return
	}

	otpauthURL, qr, err := s.TOTP.QRCode(user.Email, secret)
	if err != nil {
		writeAppError(w, "2fa setup", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"secret":      secret,
		"otpauth_url": otpauthURL,
		"qr_code":     qr,
	})
}

type twoFactorVerifyRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

func (s *Server) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "user_id and code are required")
		return
	}

	ctx := r.Context()
	sec, err := s.TwoFactor.Get(ctx, req.UserID)
	if err != nil {
		writeAppError(w, "2fa verify", err)
		return
	}
	if sec == nil {
		writeAppError(w, "2fa verify", auth.ErrTotpSetupRequired)
		return
	}
	if sec.Enabled {
		writeAppError(w, "2fa verify", auth.ErrTotpAlreadyEnabled)
		return
	}

	if err := s.checkTwoFactorCode(r, req.UserID, sec, req.Code); err != nil {
		writeAppError(w, "2fa verify", err)
		return
	}

	if err := s.TwoFactor.Enable(ctx, req.UserID); err != nil {
		writeAppError(w, "2fa verify", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

type twoFactorDisableRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	var req twoFactorDisableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Password == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "user_id, password, and code are required")
		return
	}

	ctx := r.Context()
	user, err := s.verifyUserPassword(r, req.UserID, req.Password)
	if err != nil {
		writeAppError(w, "2fa disable", err)
		return
	}

	sec, err := s.TwoFactor.Get(ctx, user.ID)
	if err != nil {
		writeAppError(w, "2fa disable", err)
		return
	}
	if sec == nil || !sec.Enabled {
		writeAppError(w, "2fa disable", auth.ErrTotpNotEnabled)
		return
	}

	if err := s.checkTwoFactorCode(r, user.ID, sec, req.Code); err != nil {
		writeAppError(w, "2fa disable", err)
		return
	}

	if err := s.TwoFactor.Delete(ctx, user.ID); err != nil {
		writeAppError(w, "2fa disable", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"disabled": true})
}

// verifyUserPassword re-checks the account password for sensitive 2FA
// mutations. Failures look identical whether the user id or the password
// was wrong.
func (s *Server) verifyUserPassword(r *http.Request, userID, password string) (*auth.User, error) {
	user, err := s.Users.FindByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return s.Verifier.Verify(r.Context(), "", password) // burns a hash compare, returns ErrInvalidCredentials
	}
	return s.Verifier.Verify(r.Context(), user.Email, password)
}

package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"authgate/internal/auth"
)

const resetConfirmation = "If the account exists, a reset link has been sent."

type resetRequestRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validateEmail(email) {
		writeError(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	ctx := r.Context()
	if locked, err := s.RateLimiter.RegisterResetAttempt(ctx, email); err != nil {
		log.Printf("password reset request: rate limiter update failed: %v", err)
	} else if locked {
		writeError(w, http.StatusTooManyRequests, "Too many reset requests. Try again later.")
		return
	}

	// The response never reveals whether the account exists.
	user, err := s.Users.FindByEmail(ctx, email)
	if err != nil {
		writeAppError(w, "password reset request", err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": resetConfirmation})
		return
	}

	token, err := newResetToken()
	if err != nil {
		writeAppError(w, "password reset request", err)
		return
	}
	expires := time.Now().Add(s.Config.PasswordResetTTL)
	if _, err := s.ResetTokens.Create(ctx, user.ID, auth.HashString(token), expires); err != nil {
		writeAppError(w, "password reset request", err)
		return
	}

	link := s.Config.PasswordResetURL + "?token=" + token
	if s.Config.Email.Enabled() {
		subject := "Reset your password"
		text := fmt.Sprintf("Follow this link to reset your password: %s\nThe link expires in %s.", link, s.Config.PasswordResetTTL)
		html := fmt.Sprintf(`<p>Follow <a href="%s">this link</a> to reset your password.</p><p>The link expires in %s.</p>`, link, s.Config.PasswordResetTTL)
		if err := s.Mailer.Send(ctx, user.Email, subject, text, html); err != nil {
			log.Printf("password reset request: email send failed for %s: %v", user.Email, err)
		}
	} else {
		// Dev setups without SMTP still need the link somewhere.
		log.Printf("password reset request: email disabled, reset link for %s: %s", user.Email, link)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": resetConfirmation})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	tok, err := s.ResetTokens.FindByHash(ctx, auth.HashString(req.Token))
	if err != nil {
		writeAppError(w, "password reset", err)
		return
	}
	if tok == nil {
		writeAppError(w, "password reset", auth.ErrTokenNotFound)
		return
	}
	if tok.UsedAt != nil || time.Now().After(tok.ExpiresAt) {
		writeAppError(w, "password reset", auth.ErrTokenExpiredOrUsed)
		return
	}

	// Claim the token before touching the password so a concurrent request
	// with the same token loses cleanly.
	claimed, err := s.ResetTokens.MarkUsed(ctx, tok.ID)
	if err != nil {
		writeAppError(w, "password reset", err)
		return
	}
	if !claimed {
		writeAppError(w, "password reset", auth.ErrTokenExpiredOrUsed)
		return
	}

	hashed, err := s.Hasher.Hash(req.NewPassword)
	if err != nil {
		writeAppError(w, "password reset", err)
		return
	}
	if err := s.Users.UpdatePassword(ctx, tok.UserID, hashed); err != nil {
		writeAppError(w, "password reset", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated."})
}

func newResetToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

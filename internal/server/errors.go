package server

import (
	"errors"
	"log"
	"net/http"

	"authgate/internal/auth"
	"authgate/internal/hydra"
	"authgate/internal/oauth"
)

// writeAppError maps domain errors to HTTP responses. Oracle-sensitive
// failures share one generic client message; the detail only goes to the
// log.
func writeAppError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrTotpInvalid):
		writeError(w, http.StatusUnauthorized, "Invalid 2FA code")
	case errors.Is(err, auth.ErrTotpAlreadyEnabled):
		writeError(w, http.StatusConflict, "Two-factor authentication is already enabled")
	case errors.Is(err, auth.ErrTotpNotEnabled):
		writeError(w, http.StatusBadRequest, "Two-factor authentication is not enabled")
	case errors.Is(err, auth.ErrTotpSetupRequired):
		writeError(w, http.StatusForbidden, "Two-factor setup has not been completed")
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, auth.ErrSocialLinkExists):
		writeError(w, http.StatusConflict, "Account already linked")
	case errors.Is(err, auth.ErrTokenNotFound), errors.Is(err, auth.ErrTokenExpiredOrUsed):
		// Deliberately indistinguishable: a valid-but-used token must look
		// the same as one that never existed.
		writeError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, oauth.ErrInvalidState):
		log.Printf("%s: rejected oauth state (possible CSRF): %v", op, err)
		writeError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, oauth.ErrNotConfigured):
		writeError(w, http.StatusNotFound, "Unknown provider")
	case errors.Is(err, oauth.ErrProviderUnavailable):
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusBadGateway, "Identity provider unavailable")
	case errors.Is(err, hydra.ErrUnavailable):
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusBadGateway, "Authorization server unavailable")
	default:
		log.Printf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

package auth

import "errors"

var (
	// ErrInvalidCredentials covers every authentication failure: unknown
	// email, missing password hash, or a wrong password. Callers must not
	// distinguish them.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailExists = errors.New("email already registered")

	// ErrSocialLinkExists means another request linked the same provider
	// identity first.
	ErrSocialLinkExists = errors.New("social account already linked")

	ErrTotpInvalid        = errors.New("invalid 2fa code")
	ErrTotpAlreadyEnabled = errors.New("2fa is already enabled")
	ErrTotpNotEnabled     = errors.New("2fa is not enabled")
	ErrTotpSetupRequired  = errors.New("2fa setup has not been started")

	ErrTokenNotFound      = errors.New("reset token not found")
	ErrTokenExpiredOrUsed = errors.New("reset token expired or already used")
)

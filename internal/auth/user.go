package auth

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TwoFactorSecret holds a user's TOTP secret, AEAD-encrypted at rest.
// A row with Enabled=false is a pending enrollment awaiting confirmation.
type TwoFactorSecret struct {
	UserID          string
	SecretEncrypted []byte
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

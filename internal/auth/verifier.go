package auth

import "context"

// dummyPasswordHash is a bcrypt hash of a throwaway value. It is compared
// against whenever no stored hash exists, so an unknown email costs the
// same as a wrong password.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// Verifier checks email+password pairs. Every failure path performs
// exactly one bcrypt comparison and returns ErrInvalidCredentials.
type Verifier struct {
	Users  UserFinder
	Hasher PasswordHasher
}

func (v *Verifier) Verify(ctx context.Context, email, password string) (*User, error) {
	user, err := v.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil || user.PasswordHash == nil {
		v.Hasher.Compare(dummyPasswordHash, password)
		return nil, ErrInvalidCredentials
	}

	if !v.Hasher.Compare(*user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

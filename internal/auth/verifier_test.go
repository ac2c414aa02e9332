package auth

import (
	"context"
	"errors"
	"testing"
)

type fakeUserFinder struct {
	users map[string]*User
	err   error
}

func (f *fakeUserFinder) FindByEmail(_ context.Context, email string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[email], nil
}

// countingHasher records compare calls so tests can assert the dummy
// comparison runs on every failure path.
type countingHasher struct {
	compares int
	matches  map[string]string // hash -> password that matches
}

func (c *countingHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (c *countingHasher) Compare(hash, password string) bool {
	c.compares++
	want, ok := c.matches[hash]
	return ok && want == password
}

func TestVerifierSuccess(t *testing.T) {
	t.Parallel()

	hash := "stored-hash"
	hasher := &countingHasher{matches: map[string]string{hash: "hunter2!"}}
	v := &Verifier{
		Users:  &fakeUserFinder{users: map[string]*User{"a@b.c": {ID: "u1", Email: "a@b.c", PasswordHash: &hash}}},
		Hasher: hasher,
	}

	user, err := v.Verify(context.Background(), "a@b.c", "hunter2!")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("user.ID = %q, want u1", user.ID)
	}
	if hasher.compares != 1 {
		t.Fatalf("compares = %d, want 1", hasher.compares)
	}
}

func TestVerifierFailurePathsCostOneCompare(t *testing.T) {
	t.Parallel()

	hash := "stored-hash"
	cases := []struct {
		name  string
		users map[string]*User
		email string
	}{
		{"unknown email", map[string]*User{}, "nobody@example.com"},
		{"no password hash", map[string]*User{"social@example.com": {ID: "u2", Email: "social@example.com"}}, "social@example.com"},
		{"wrong password", map[string]*User{"a@b.c": {ID: "u1", Email: "a@b.c", PasswordHash: &hash}}, "a@b.c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hasher := &countingHasher{matches: map[string]string{hash: "correct"}}
			v := &Verifier{Users: &fakeUserFinder{users: tc.users}, Hasher: hasher}

			user, err := v.Verify(context.Background(), tc.email, "wrong")
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Verify = %v, want ErrInvalidCredentials", err)
			}
			if user != nil {
				t.Fatal("Verify returned a user on failure")
			}
			if hasher.compares != 1 {
				t.Fatalf("compares = %d, want exactly 1", hasher.compares)
			}
		})
	}
}

func TestVerifierLookupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	v := &Verifier{Users: &fakeUserFinder{err: boom}, Hasher: &countingHasher{}}

	_, err := v.Verify(context.Background(), "a@b.c", "pw")
	if !errors.Is(err, boom) {
		t.Fatalf("Verify = %v, want wrapped db error", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("infrastructure error must not look like bad credentials")
	}
}

package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"authgate/internal/crypto"
)

func newTestCodec(t *testing.T) *StateCodec {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	box, err := crypto.NewBox(key)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	return &StateCodec{Box: box}
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	challenge := "c50592cbb2b1493d97e64861fdedca76"

	state, err := codec.Encode(challenge)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Base64url without padding, safe to put in a query string as-is.
	if _, err := base64.RawURLEncoding.DecodeString(state); err != nil {
		t.Fatalf("state is not unpadded base64url: %v", err)
	}

	got, err := codec.Decode(state)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != challenge {
		t.Fatalf("Decode = %q, want %q", got, challenge)
	}
}

func TestStateDecodeRejectsBitFlips(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	state, err := codec.Encode("challenge-id")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	for i := range payload {
		flipped := make([]byte, len(payload))
		copy(flipped, payload)
		flipped[i] ^= 0x01
		if _, err := codec.Decode(base64.RawURLEncoding.EncodeToString(flipped)); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("byte %d: Decode = %v, want ErrInvalidState", i, err)
		}
	}
}

func TestStateDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	for _, state := range []string{"", "not base64!!", "c2hvcnQ", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := codec.Decode(state); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("%q: Decode = %v, want ErrInvalidState", state, err)
		}
	}
}

func TestStateDecodeWrongKey(t *testing.T) {
	t.Parallel()

	a := newTestCodec(t)
	b := newTestCodec(t)

	state, err := a.Encode("challenge-id")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := b.Decode(state); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Decode with wrong key = %v, want ErrInvalidState", err)
	}
}

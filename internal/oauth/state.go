package oauth

import (
	"encoding/base64"
	"errors"
	"unicode/utf8"

	"authgate/internal/crypto"
)

// ErrInvalidState is the only decode failure a caller sees, whatever went
// wrong underneath: bad Base64, truncated payload, tampered bytes, or a
// wrong key. A distinguishable failure would leak oracle information to
// whoever forged the parameter.
var ErrInvalidState = errors.New("invalid oauth state")

// StateCodec carries the provider login challenge through the external
// OAuth round trip inside an encrypted state parameter.
type StateCodec struct {
	Box *crypto.Box
}

func (c *StateCodec) Encode(challenge string) (string, error) {
	sealed, err := c.Box.Seal([]byte(challenge))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *StateCodec) Decode(state string) (string, error) {
	payload, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return "", ErrInvalidState
	}
	plain, err := c.Box.Open(payload)
	if err != nil {
		return "", ErrInvalidState
	}
	if !utf8.Valid(plain) {
		return "", ErrInvalidState
	}
	return string(plain), nil
}

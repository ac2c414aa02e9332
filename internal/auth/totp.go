package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"image/png"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"authgate/internal/crypto"
)

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPService owns the TOTP secret lifecycle: generation, encryption at
// rest, QR enrollment, and code verification with a one-step clock skew.
type TOTPService struct {
	Issuer string
	Box    *crypto.Box
}

func NewTOTPService(issuer string, box *crypto.Box) *TOTPService {
	return &TOTPService{Issuer: issuer, Box: box}
}

// GenerateSecret returns 20 random bytes as unpadded Base32 (32 chars).
func (t *TOTPService) GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base32NoPad.EncodeToString(raw), nil
}

func (t *TOTPService) EncryptSecret(secret string) ([]byte, error) {
	return t.Box.Seal([]byte(secret))
}

func (t *TOTPService) DecryptSecret(blob []byte) (string, error) {
	plain, err := t.Box.Open(blob)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// QRCode renders the otpauth URL for an existing secret as a PNG data URL.
func (t *TOTPService) QRCode(email, secret string) (otpauthURL, qrDataURL string, err error) {
	raw, err := base32NoPad.DecodeString(secret)
	if err != nil {
		return "", "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.Issuer,
		AccountName: email,
		Secret:      raw,
	})
	if err != nil {
		return "", "", err
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return key.URL(), "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return key.URL(), "", err
	}
	qr := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	return key.URL(), qr, nil
}

// VerifyCode accepts the current 30-second step and its immediate
// neighbors. Anything that is not exactly six ASCII digits is rejected
// before any TOTP math runs.
func (t *TOTPService) VerifyCode(secret, code string) bool {
	return t.verifyAt(secret, code, time.Now().UTC())
}

func (t *TOTPService) verifyAt(secret, code string, at time.Time) bool {
	if !isSixDigits(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

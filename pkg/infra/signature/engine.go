package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrMissingSecret = errors.New("signing secret is not configured")

// Engine signs and verifies payloads with HMAC-SHA256. Signatures are
// lowercase hex.
type Engine struct {
	secret []byte
}

func NewEngine(secret string) *Engine {
	return &Engine{secret: []byte(secret)}
}

func (e *Engine) Sign(payload []byte) (string, error) {
	if e == nil || len(e.secret) == 0 {
		return "", ErrMissingSecret
	}
	return hex.EncodeToString(mac(e.secret, payload)), nil
}

// Verify never succeeds without both a secret and a signature.
func (e *Engine) Verify(payload []byte, signatureHex string) bool {
	if e == nil || len(e.secret) == 0 || signatureHex == "" {
		return false
	}
	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac(e.secret, payload))
}

func Sign(payload []byte, secret string) (string, error) {
	return NewEngine(secret).Sign(payload)
}

func Verify(payload []byte, signatureHex, secret string) bool {
	return NewEngine(secret).Verify(payload, signatureHex)
}

func mac(secret, payload []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

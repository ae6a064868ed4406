// Package signature signs and checks gateway HMAC-SHA256 hex signatures.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrNotConfigured = errors.New("signature secret not configured")
	ErrMismatch      = errors.New("signature mismatch")
)

// Verifier holds one shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret. An empty secret yields a verifier
// that rejects everything.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured reports whether a secret is set.
func (v *Verifier) Configured() bool { return v != nil && len(v.secret) > 0 }

// Sign returns the lowercase hex HMAC-SHA256 of msg.
func (v *Verifier) Sign(msg []byte) (string, error) {
	if !v.Configured() {
		return "", ErrNotConfigured
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks sig against msg in constant time.
func (v *Verifier) Verify(msg []byte, sig string) error {
	want, err := v.Sign(msg)
	if err != nil {
		return err
	}
	if sig == "" || !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrMismatch
	}
	return nil
}

// PaymentMessage is the message the gateway signs on checkout completion.
func PaymentMessage(orderRef, paymentRef string) []byte {
	return []byte(orderRef + "|" + paymentRef)
}

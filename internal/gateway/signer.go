package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	d "github.com/fjod/photo_checkout/domain"
)

// Signer derives the tokens both sides of the gateway compute:
//
//	request:  sha256(secret + processId + amount + currency)
//	callback: sha256(secret + processId + amount + currency + outcome)
//
// amount is always Money.GatewayString.
type Signer struct {
	secret string
}

func NewSigner(secret string) Signer {
	return Signer{secret: secret}
}

func (s Signer) RequestToken(processID string, amount d.Money) string {
	return hash(s.secret, processID, amount.GatewayString(), amount.Currency)
}

func (s Signer) CallbackToken(processID string, amount d.Money, outcome d.CallbackOutcome) string {
	return hash(s.secret, processID, amount.GatewayString(), amount.Currency, string(outcome))
}

// VerifyCallback compares in constant time.
func (s Signer) VerifyCallback(processID string, amount d.Money, outcome d.CallbackOutcome, token string) bool {
	want := s.CallbackToken(processID, amount, outcome)
	return hmac.Equal([]byte(want), []byte(token))
}

func (s Signer) VerifyRequest(processID string, amount d.Money, token string) bool {
	want := s.RequestToken(processID, amount)
	return hmac.Equal([]byte(want), []byte(token))
}

func hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

package domain

import "errors"

var ErrNoOwner = errors.New("owner reference has neither session nor account")

// OwnerRef names the carts a buyer can see: an anonymous session, an
// authenticated account, or both while a guest is logging in.
type OwnerRef struct {
	SessionID string `json:"session_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

func (o OwnerRef) IsEmpty() bool {
	return o.SessionID == "" && o.AccountID == ""
}

func (o OwnerRef) Validate() error {
	if o.IsEmpty() {
		return ErrNoOwner
	}
	return nil
}

// Key is the stable identity used for checkout idempotency. An account wins
// over a session so a guest who logs in mid-checkout keeps the same key space.
func (o OwnerRef) Key() string {
	if o.AccountID != "" {
		return "account:" + o.AccountID
	}
	if o.SessionID != "" {
		return "session:" + o.SessionID
	}
	return ""
}

package gateway

// AuthorizeRequest is the outbound authorization call.
type AuthorizeRequest struct {
	PublicKey      string `json:"publicKey"`
	ProcessID      string `json:"processId"`
	CurrencyCode   string `json:"currencyCode"`
	Amount         string `json:"amount"`
	SignatureToken string `json:"signatureToken"`
	ReturnURL      string `json:"returnURL"`
	CancelURL      string `json:"cancelURL"`
}

type AuthorizeResponse struct {
	ProcessID   string `json:"processId"`
	RedirectURL string `json:"redirectUrl"`
}

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusDeclined  = "declined"
	StatusCancelled = "cancelled"
)

// StatusResponse is the gateway's own record of a payment.
type StatusResponse struct {
	ProcessID    string `json:"processId"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// CallbackPayload is what the gateway posts to the webhook and appends to
// the browser return URL as query parameters.
type CallbackPayload struct {
	ProcessID string `json:"processId"`
	Outcome   string `json:"outcome"`
	Token     string `json:"token"`
}

type errorBody struct {
	Error string `json:"error"`
}

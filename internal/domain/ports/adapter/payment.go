package adapter

import "context"

// CreateTransactionRequest is what the marketplace sends when opening a
// hosted payment page for an order.
type CreateTransactionRequest struct {
	OrderID       string
	GrossAmount   int64
	CustomerName  string
	CustomerEmail string
	CourseName    string
	UserID        string
	CourseID      string
}

// CreateTransactionResponse carries the gateway token and the hosted payment
// page URL the buyer is redirected to.
type CreateTransactionResponse struct {
	Token       string
	RedirectURL string
}

// Notification is an inbound webhook payload in the gateway's vocabulary.
// TransactionStatus values: capture, settlement, pending, authorize, deny,
// cancel, expire, refund, partial_refund.
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	PaymentType       string `json:"payment_type,omitempty"`
	TransactionTime   string `json:"transaction_time,omitempty"`
	SignatureKey      string `json:"signature_key,omitempty"`
}

// PaymentGateway is the hex port for hosted-payment-page providers.
type PaymentGateway interface {
	Name() string

	// CreateTransaction opens a payment intent and returns the gateway token
	// plus the redirect URL. No retries inside; the caller owns retry policy.
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResponse, error)

	// VerifyNotification checks an inbound webhook's authenticity
	// (signature over order id, status code, gross amount and the merchant
	// server key). A false return means the payload must not mutate state.
	VerifyNotification(n *Notification) bool

	// StatusOf polls the gateway for the current transaction status of an
	// order, in the gateway's own vocabulary. Used by reconciliation when a
	// webhook went missing.
	StatusOf(ctx context.Context, orderID string) (string, error)
}

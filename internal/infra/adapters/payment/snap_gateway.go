package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"course-marketplace/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*SnapGateway)(nil)

// SnapGateway implements adapter.PaymentGateway against a Midtrans-style Snap
// API: a hosted payment page opened per order, webhook notifications signed
// with SHA512 over order id, status code, gross amount and the server key.
type SnapGateway struct {
	serverKey string
	sandbox   bool
	client    *http.Client
}

func NewSnapGateway(serverKey string, sandbox bool) (*SnapGateway, error) {
	if serverKey == "" {
		return nil, errors.New("server key empty")
	}
	return &SnapGateway{
		serverKey: serverKey,
		sandbox:   sandbox,
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *SnapGateway) Name() string { return "snap" }

func (g *SnapGateway) snapEndpoint() string {
	if g.sandbox {
		return "https://app.sandbox.midtrans.com/snap/v1/transactions"
	}
	return "https://app.midtrans.com/snap/v1/transactions"
}

func (g *SnapGateway) statusEndpoint(orderID string) string {
	base := "https://api.midtrans.com"
	if g.sandbox {
		base = "https://api.sandbox.midtrans.com"
	}
	return base + "/v2/" + orderID + "/status"
}

func (g *SnapGateway) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(g.serverKey+":"))
}

// CreateTransaction opens a Snap transaction and returns the token plus the
// hosted payment page URL.
func (g *SnapGateway) CreateTransaction(ctx context.Context, req adapter.CreateTransactionRequest) (*adapter.CreateTransactionResponse, error) {
	payload := map[string]any{
		"transaction_details": map[string]any{
			"order_id":     req.OrderID,
			"gross_amount": req.GrossAmount,
		},
		"customer_details": map[string]any{
			"first_name": req.CustomerName,
			"email":      req.CustomerEmail,
		},
		"item_details": []map[string]any{{
			"id":       req.CourseID,
			"name":     req.CourseName,
			"price":    req.GrossAmount,
			"quantity": 1,
		}},
		"custom_field1": req.UserID,
	}
	b, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.snapEndpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", g.authHeader())

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Token         string   `json:"token"`
		RedirectURL   string   `json:"redirect_url"`
		ErrorMessages []string `json:"error_messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode snap response: %w", err)
	}
	if resp.StatusCode >= 300 || out.Token == "" {
		return nil, fmt.Errorf("snap transaction rejected (http %d): %v", resp.StatusCode, out.ErrorMessages)
	}
	return &adapter.CreateTransactionResponse{Token: out.Token, RedirectURL: out.RedirectURL}, nil
}

// VerifyNotification checks signature_key = SHA512(order_id + status_code +
// gross_amount + server_key).
func (g *SnapGateway) VerifyNotification(n *adapter.Notification) bool {
	if n == nil || n.SignatureKey == "" {
		return false
	}
	h := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + g.serverKey))
	expected := hex.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// StatusOf polls the transaction status API; used when a webhook is suspected
// lost.
func (g *SnapGateway) StatusOf(ctx context.Context, orderID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.statusEndpoint(orderID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", g.authHeader())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		TransactionStatus string `json:"transaction_status"`
		StatusCode        string `json:"status_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || out.TransactionStatus == "" {
		return "", fmt.Errorf("order %s not found at gateway", orderID)
	}
	return out.TransactionStatus, nil
}

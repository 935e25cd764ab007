package payment

import (
	"context"
	"fmt"
	"sync"

	"course-marketplace/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway to use in dev and tests.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]string // orderID -> gateway status
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{intents: make(map[string]string)}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreateTransaction(ctx context.Context, req adapter.CreateTransactionRequest) (*adapter.CreateTransactionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.intents[req.OrderID] = "pending"
	token := fmt.Sprintf("noop-%d", g.seq)
	return &adapter.CreateTransactionResponse{
		Token:       token,
		RedirectURL: "https://example.test/pay/" + token,
	}, nil
}

// VerifyNotification accepts everything; the noop gateway is never exposed to
// untrusted input.
func (g *NoopPaymentGateway) VerifyNotification(n *adapter.Notification) bool { return n != nil }

func (g *NoopPaymentGateway) StatusOf(ctx context.Context, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.intents[orderID]
	if !ok {
		return "", fmt.Errorf("noop: order %s not found", orderID)
	}
	return status, nil
}

// SetStatus lets tests steer what StatusOf reports for an order.
func (g *NoopPaymentGateway) SetStatus(orderID, status string) {
	g.mu.Lock()
	g.intents[orderID] = status
	g.mu.Unlock()
}

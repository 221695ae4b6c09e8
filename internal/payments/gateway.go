// Package payments is the outbound side of the payment collaborator. Charge
// intents and refunds are requested over the payments queue; the outcomes
// come back as events handled by the worker.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-marketplace-orders/internal/money"
)

// Event types exchanged with the payment collaborator.
const (
	EventIntentRequested = "payment.intent_requested"
	EventRefundRequested = "payment.refund_requested"
	EventSucceeded       = "payment.succeeded"
	EventFailed          = "payment.failed"
	EventRefundCompleted = "refund.completed"
)

// ErrDisabled is returned when no payments queue is configured.
var ErrDisabled = errors.New("payments queue not configured")

// Publisher sends an event to the payments queue.
type Publisher interface {
	Enabled() bool
	Publish(ctx context.Context, eventType string, payload interface{}, attributes map[string]string) error
}

// IntentRequest asks the collaborator to prepare a charge for an order.
type IntentRequest struct {
	OrderID       string  `json:"orderId"`
	CustomerEmail string  `json:"customerEmail"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
}

// Intent is what the storefront needs to complete a charge.
type Intent struct {
	IntentID     string    `json:"intentId"`
	OrderID      string    `json:"orderId"`
	Amount       string    `json:"amount"`
	AmountMinor  int64     `json:"amountMinor"`
	Currency     string    `json:"currency"`
	ClientSecret string    `json:"clientSecret"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RefundRequest asks the collaborator to return money for cancelled lines.
type RefundRequest struct {
	OrderID   string  `json:"orderId"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"` // cancellation event id
	Reason    string  `json:"reason,omitempty"`
}

// Gateway publishes payment requests.
type Gateway struct {
	publisher Publisher
	currency  string
	newID     func() string
	nowFunc   func() time.Time
}

// NewGateway returns a Gateway that charges in the given currency.
func NewGateway(publisher Publisher, currency string) *Gateway {
	return &Gateway{
		publisher: publisher,
		currency:  strings.ToLower(currency),
		newID:     func() string { return uuid.New().String() },
		nowFunc:   time.Now,
	}
}

// CreateIntent publishes a charge intent and returns its client reference.
func (g *Gateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if !g.publisher.Enabled() {
		return nil, ErrDisabled
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("intent amount must be positive, got %s", money.String(req.Amount))
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = g.currency
	}

	id := g.newID()
	intent := &Intent{
		IntentID:     id,
		OrderID:      req.OrderID,
		Amount:       money.String(req.Amount),
		AmountMinor:  money.Minor(req.Amount),
		Currency:     currency,
		ClientSecret: id + "_secret_" + g.newID(),
		CreatedAt:    g.nowFunc().UTC(),
	}

	attrs := map[string]string{"order_id": req.OrderID, "intent_id": id}
	payload := struct {
		*Intent
		CustomerEmail string `json:"customerEmail"`
	}{intent, req.CustomerEmail}
	if err := g.publisher.Publish(ctx, EventIntentRequested, payload, attrs); err != nil {
		return nil, fmt.Errorf("publish intent: %w", err)
	}
	log.Printf("[payments] intent requested order=%s intent=%s amount=%s %s", req.OrderID, id, intent.Amount, currency)
	return intent, nil
}

// Refund publishes a refund request.
func (g *Gateway) Refund(ctx context.Context, req RefundRequest) error {
	if !g.publisher.Enabled() {
		return ErrDisabled
	}
	if req.Amount <= 0 {
		return nil
	}
	payload := map[string]interface{}{
		"orderId":     req.OrderID,
		"amount":      money.String(req.Amount),
		"amountMinor": money.Minor(req.Amount),
		"currency":    g.currency,
		"reference":   req.Reference,
		"reason":      req.Reason,
	}
	attrs := map[string]string{"order_id": req.OrderID, "reference": req.Reference}
	if err := g.publisher.Publish(ctx, EventRefundRequested, payload, attrs); err != nil {
		return fmt.Errorf("publish refund: %w", err)
	}
	log.Printf("[payments] refund requested order=%s amount=%s ref=%s", req.OrderID, money.String(req.Amount), req.Reference)
	return nil
}

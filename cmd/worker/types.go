package main

import "github.com/shopspring/decimal"

// PaymentMessage is a result sent by the payment collaborator. The event
// type travels in the event_type message attribute; Type is the fallback
// for producers that put it in the body.
type PaymentMessage struct {
	Type          string          `json:"type,omitempty"`
	OrderID       string          `json:"orderId"`
	IntentID      string          `json:"intentId,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference,omitempty"` // cancellation id for refunds
	Reason        string          `json:"reason,omitempty"`
}

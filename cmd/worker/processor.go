package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/imrishuroy/go-marketplace-orders/internal/apperr"
	"github.com/imrishuroy/go-marketplace-orders/internal/idempotency"
	"github.com/imrishuroy/go-marketplace-orders/internal/orders"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
)

// PaymentRecorder applies a successful charge to an order.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, orderID, transactionID string, amount float64) (*orders.Order, error)
}

// Dedup remembers which queue messages were handled.
type Dedup interface {
	CreateIfNotExists(ctx context.Context, key, reference string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// errPermanent marks a message that will never succeed on retry.
var errPermanent = errors.New("permanent failure")

// Processor handles payment result messages.
type Processor struct {
	orders PaymentRecorder
	dedup  Dedup
}

// NewProcessor creates a new worker processor.
func NewProcessor(recorder PaymentRecorder, dedup Dedup) *Processor {
	return &Processor{orders: recorder, dedup: dedup}
}

// Handle processes a batch and reports only the messages that should be
// retried, so one bad message does not redeliver the whole batch.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] message=%s failed, will retry: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func dedupKey(messageID string) string { return "sqs#" + messageID }

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg PaymentMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		// a malformed body never parses on retry
		log.Printf("[worker] dropping malformed message=%s err=%v body=%s", rec.MessageId, err, rec.Body)
		return nil
	}
	eventType := msg.Type
	if attr, found := rec.MessageAttributes["event_type"]; found && attr.StringValue != nil {
		eventType = *attr.StringValue
	}

	key := dedupKey(rec.MessageId)
	created, err := p.dedup.CreateIfNotExists(ctx, key, msg.OrderID)
	if err != nil {
		return fmt.Errorf("claim message: %w", err)
	}
	if !created {
		prev, err := p.dedup.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read message claim: %w", err)
		}
		if prev != nil && prev.Status != idempotency.StatusInProgress {
			log.Printf("[worker] duplicate message=%s status=%s, skipping", rec.MessageId, prev.Status)
			return nil
		}
		// a previous attempt died mid-flight; the handlers below are safe to repeat
	}

	log.Printf("[worker] received event=%s order=%s message=%s", eventType, msg.OrderID, rec.MessageId)
	err = p.dispatch(ctx, eventType, msg)
	switch {
	case err == nil:
		if err := p.dedup.MarkDone(ctx, key, fmt.Sprintf(`{"event":%q,"orderId":%q}`, eventType, msg.OrderID), http.StatusOK); err != nil {
			log.Printf("[worker] mark done failed message=%s err=%v", rec.MessageId, err)
		}
		return nil
	case errors.Is(err, errPermanent):
		log.Printf("[worker] giving up on message=%s: %v", rec.MessageId, err)
		if err := p.dedup.MarkFailed(ctx, key, err.Error()); err != nil {
			log.Printf("[worker] mark failed failed message=%s err=%v", rec.MessageId, err)
		}
		return nil
	default:
		// the claim stays IN_PROGRESS so the redelivery runs again
		return err
	}
}

func (p *Processor) dispatch(ctx context.Context, eventType string, msg PaymentMessage) error {
	switch eventType {
	case payments.EventSucceeded:
		if msg.OrderID == "" || msg.TransactionID == "" {
			return fmt.Errorf("%w: payment result without order or transaction id", errPermanent)
		}
		amount := msg.Amount.InexactFloat64()
		o, err := p.orders.RecordPayment(ctx, msg.OrderID, msg.TransactionID, amount)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				return err
			}
			var appErr *apperr.Error
			if errors.As(err, &appErr) && appErr.Detail["refunded"] == true {
				log.Printf("[worker] payment refunded order=%s txn=%s reason=%v", msg.OrderID, msg.TransactionID, appErr.Detail["reason"])
				return nil
			}
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		log.Printf("[worker] payment applied order=%s txn=%s status=%s", o.OrderID, msg.TransactionID, o.PaymentStatus)
	case payments.EventFailed:
		log.Printf("[worker] payment failed order=%s intent=%s reason=%q", msg.OrderID, msg.IntentID, msg.Reason)
	case payments.EventRefundCompleted:
		log.Printf("[worker] refund completed order=%s ref=%s amount=%s", msg.OrderID, msg.Reference, msg.Amount.StringFixed(2))
	default:
		log.Printf("[worker] ignoring unknown event=%q order=%s", eventType, msg.OrderID)
	}
	return nil
}

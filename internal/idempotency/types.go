package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. Keys are
// either a customer's Idempotency-Key header scoped by email, or a queue
// message id for the payments worker.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	Reference      string    `dynamodbav:"reference,omitempty"`       // order id the key produced
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // replayed verbatim on duplicates
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// ScopedKey namespaces a client supplied key by its owner so two customers
// sending the same header value never collide.
func ScopedKey(owner, key string) string {
	return owner + "#" + key
}

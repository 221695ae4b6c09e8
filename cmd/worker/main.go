package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-marketplace-orders/internal/aws"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/config"
	"github.com/imrishuroy/go-marketplace-orders/internal/idempotency"
	"github.com/imrishuroy/go-marketplace-orders/internal/orders"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	ledger := catalog.NewLedger(clients.DynamoDB, cfg.ProductsTable)
	keys := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	svc := orders.NewService(orders.Dependencies{
		Repo: orders.NewStore(clients.DynamoDB, orders.StoreConfig{
			TableName:     cfg.OrdersTable,
			CustomerIndex: cfg.OrdersCustomerIndex,
			Ledger:        ledger,
			Keys:          keys,
		}),
		Products: ledger,
		Events:   aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL),
		Payments: payments.NewGateway(aws.NewPublisher(clients.SQS, cfg.PaymentsQueueURL), cfg.Currency),
		Metrics:  aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),
	})
	p := NewProcessor(svc, keys)

	// If RUN_LOCAL=true, process a single message from LOCAL_SQS_BODY and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		eventType := os.Getenv("LOCAL_SQS_EVENT_TYPE")
		msg := events.SQSMessage{MessageId: "local-1", Body: body}
		if eventType != "" {
			msg.MessageAttributes = map[string]events.SQSMessageAttribute{
				"event_type": {DataType: "String", StringValue: &eventType},
			}
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Fatalf("local handler error: %v failures=%d", err, len(resp.BatchItemFailures))
		}
		return
	}

	lambda.Start(p.Handle)
}

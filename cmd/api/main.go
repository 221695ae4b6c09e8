package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/imrishuroy/go-marketplace-orders/internal/auth"
	"github.com/imrishuroy/go-marketplace-orders/internal/aws"
	"github.com/imrishuroy/go-marketplace-orders/internal/cart"
	"github.com/imrishuroy/go-marketplace-orders/internal/catalog"
	"github.com/imrishuroy/go-marketplace-orders/internal/config"
	"github.com/imrishuroy/go-marketplace-orders/internal/handlers"
	"github.com/imrishuroy/go-marketplace-orders/internal/idempotency"
	"github.com/imrishuroy/go-marketplace-orders/internal/orders"
	"github.com/imrishuroy/go-marketplace-orders/internal/payments"
	"github.com/imrishuroy/go-marketplace-orders/internal/sellers"
)

func setupRouter(cfg *config.Config, deps handlers.Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(r, deps)
	return r
}

func sellerDirectory(cfg *config.Config, store *sellers.Store) sellers.Directory {
	if cfg.RedisURL == "" {
		return store
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	log.Printf("[api] seller cache enabled addr=%s ttl=%s", opts.Addr, cfg.SellerCacheTTL)
	return sellers.NewCachedDirectory(store, redis.NewClient(opts), sellers.WithTTL(cfg.SellerCacheTTL))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	ledger := catalog.NewLedger(clients.DynamoDB, cfg.ProductsTable)
	directory := sellerDirectory(cfg, sellers.NewStore(clients.DynamoDB, cfg.SellersTable))
	carts := cart.NewDynamoStore(clients.DynamoDB, cfg.CartsTable)
	keys := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)

	svc := orders.NewService(orders.Dependencies{
		Repo: orders.NewStore(clients.DynamoDB, orders.StoreConfig{
			TableName:     cfg.OrdersTable,
			CustomerIndex: cfg.OrdersCustomerIndex,
			Ledger:        ledger,
			Carts:         carts,
			Keys:          keys,
		}),
		Products: ledger,
		Sellers:  directory,
		Carts:    carts,
		Events:   aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL),
		Payments: payments.NewGateway(aws.NewPublisher(clients.SQS, cfg.PaymentsQueueURL), cfg.Currency),
		Metrics:  aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace),
		Pricing: orders.Pricing{
			CommissionPercent:     cfg.CommissionPercent,
			CashPaymentFee:        cfg.CashPaymentFee,
			DeliveryChargeInside:  cfg.DeliveryChargeInside,
			DeliveryChargeOutside: cfg.DeliveryChargeOutside,
		},
	})

	r := setupRouter(cfg, handlers.Dependencies{
		Cart:     cart.NewService(carts, ledger, directory),
		Orders:   svc,
		Keys:     keys,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
	})

	// if RUN_LOCAL is true, run a local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// Package config loads service settings from the environment, optionally
// seeded from a .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the API and the worker.
type Config struct {
	Port     string
	RunLocal bool

	ProductsTable         string
	SellersTable          string
	CartsTable            string
	OrdersTable           string
	OrdersCustomerIndex   string
	IdempotencyTable      string
	IdempotencyTTL        time.Duration
	OrdersQueueURL        string
	PaymentsQueueURL      string
	MetricsNamespace      string
	RedisURL              string
	SellerCacheTTL        time.Duration
	JWTSecret             string
	CORSOrigins           []string
	Currency              string
	CashPaymentFee        float64
	CommissionPercent     float64
	DeliveryChargeInside  float64
	DeliveryChargeOutside float64
}

// ErrMissingConfiguration is returned by Validate when required settings are absent.
var ErrMissingConfiguration = errors.New("missing required configuration")

// Load reads .env (when present) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] ignoring .env: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                getString("PORT", "8080"),
		RunLocal:            getString("RUN_LOCAL", "") == "true",
		ProductsTable:       getString("PRODUCTS_TABLE", "products"),
		SellersTable:        getString("SELLERS_TABLE", "sellers"),
		CartsTable:          getString("CARTS_TABLE", "carts"),
		OrdersTable:         getString("ORDERS_TABLE", "orders"),
		OrdersCustomerIndex: getString("ORDERS_CUSTOMER_INDEX", "customer_email-created_at-index"),
		IdempotencyTable:    getString("IDEMPOTENCY_TABLE", "idempotency"),
		OrdersQueueURL:      os.Getenv("ORDERS_QUEUE_URL"),
		PaymentsQueueURL:    os.Getenv("PAYMENTS_QUEUE_URL"),
		MetricsNamespace:    os.Getenv("METRICS_NAMESPACE"),
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CORSOrigins:         getList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		Currency:            getString("CURRENCY", "bdt"),
	}

	var err error
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SellerCacheTTL, err = getDuration("SELLER_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CashPaymentFee, err = getFloat("CASH_PAYMENT_FEE", 20); err != nil {
		return nil, err
	}
	if cfg.CommissionPercent, err = getFloat("PLATFORM_COMMISSION_PERCENT", 10); err != nil {
		return nil, err
	}
	if cfg.DeliveryChargeInside, err = getFloat("DELIVERY_CHARGE_INSIDE", 80); err != nil {
		return nil, err
	}
	if cfg.DeliveryChargeOutside, err = getFloat("DELIVERY_CHARGE_OUTSIDE", 150); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the API cannot run without.
func (c *Config) Validate() error {
	return c.check(map[string]string{
		"JWT_SECRET":     c.JWTSecret,
		"ORDERS_TABLE":   c.OrdersTable,
		"PRODUCTS_TABLE": c.ProductsTable,
		"CARTS_TABLE":    c.CartsTable,
	})
}

// ValidateWorker checks the settings the payment result worker needs. It
// refunds charges it cannot apply, so the payments queue is required.
func (c *Config) ValidateWorker() error {
	return c.check(map[string]string{
		"ORDERS_TABLE":       c.OrdersTable,
		"PRODUCTS_TABLE":     c.ProductsTable,
		"IDEMPOTENCY_TABLE":  c.IdempotencyTable,
		"PAYMENTS_QUEUE_URL": c.PaymentsQueueURL,
	})
}

func (c *Config) check(required map[string]string) error {
	var missing []string
	for name, value := range required {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingConfiguration, strings.Join(missing, ", "))
	}
	if c.CommissionPercent < 0 || c.CommissionPercent > 100 {
		return fmt.Errorf("PLATFORM_COMMISSION_PERCENT out of range: %v", c.CommissionPercent)
	}
	if c.CashPaymentFee < 0 || c.DeliveryChargeInside < 0 || c.DeliveryChargeOutside < 0 {
		return errors.New("fees and delivery charges must not be negative")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

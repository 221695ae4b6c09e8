package aws

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes business metrics to CloudWatch. Failures are logged and
// swallowed: a metric is never allowed to fail a request.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics recorder. A nil client or empty namespace
// yields a recorder that only logs.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records a counter style metric.
func (m *Metrics) Count(ctx context.Context, name string, n float64) {
	m.put(ctx, name, n, cwtypes.StandardUnitCount)
}

// Amount records a monetary metric.
func (m *Metrics) Amount(ctx context.Context, name string, v float64) {
	m.put(ctx, name, v, cwtypes.StandardUnitNone)
}

func (m *Metrics) put(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit) {
	if m == nil || m.client == nil || m.namespace == "" {
		return
	}
	ts := m.nowFunc()
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(name),
				Value:      &value,
				Unit:       unit,
				Timestamp:  &ts,
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", name, err)
	}
}

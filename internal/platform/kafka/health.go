package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker checks Kafka broker connectivity via a metadata request.
type HealthChecker struct {
	brokers string
	timeout time.Duration
}

// NewHealthChecker creates a new Kafka health checker.
func NewHealthChecker(brokers string) *HealthChecker {
	return &HealthChecker{
		brokers: brokers,
		timeout: 5 * time.Second,
	}
}

// Check verifies connectivity to Kafka brokers. Returns nil if the cluster
// answers a metadata request within the timeout.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.brokers == "" {
		return fmt.Errorf("kafka brokers not configured")
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(strings.Split(h.brokers, ",")...))
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	adm := kadm.NewClient(client)
	if _, err := adm.BrokerMetadata(ctx); err != nil {
		return fmt.Errorf("kafka metadata request failed: %w", err)
	}
	return nil
}

// Name returns the check name for health reporting.
func (h *HealthChecker) Name() string {
	return "kafka"
}

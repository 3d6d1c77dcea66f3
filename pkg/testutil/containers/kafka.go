//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer wraps a testcontainers Kafka instance.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

// NewKafkaContainer starts a Kafka-compatible (Redpanda) container.
func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := kafka.Run(ctx,
		"redpandadata/redpanda:latest",
		kafka.WithClusterID("bountydesk-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	kc := &KafkaContainer{
		Container: container,
		Brokers:   brokers[0],
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(ctx)
	})

	return kc
}

// CreateTopic creates a topic with the given partition layout.
func (k *KafkaContainer) CreateTopic(ctx context.Context, topic string, partitions int32, replicationFactor int16) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = kadm.NewClient(client).CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	return err
}

// NewConsumer creates a franz-go consumer for event verification in tests.
func (k *KafkaContainer) NewConsumer(ctx context.Context, groupID string, topics ...string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
}

// WaitForMessage polls until a record matches the predicate or the timeout
// elapses.
func (k *KafkaContainer) WaitForMessage(ctx context.Context, client *kgo.Client, timeout time.Duration, match func(*kgo.Record) bool) *kgo.Record {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fetches := client.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return nil
			}
			var found *kgo.Record
			fetches.EachRecord(func(r *kgo.Record) {
				if match(r) {
					found = r
				}
			})
			if found != nil {
				return found
			}
		}
	}
}

package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message represents a message to be published to Kafka.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer wraps the franz-go client with a simpler interface.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// Config holds producer configuration.
type Config struct {
	Brokers         string
	Retries         int
	DeliveryTimeout time.Duration
}

// New creates a new Kafka producer. Records are acknowledged by all in-sync
// replicas before a synchronous produce returns.
func New(cfg Config, logger *slog.Logger) (*Producer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.Brokers, ",")...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Producer{client: client, logger: logger}, nil
}

func toRecord(msg *Message) *kgo.Record {
	var headers []kgo.RecordHeader
	for k, v := range msg.Headers {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return &kgo.Record{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}

// Produce sends a message to Kafka synchronously.
// It waits for the delivery report before returning.
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	results := p.client.ProduceSync(ctx, toRecord(msg))
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce message: %w", err)
	}
	return nil
}

// ProduceAsync sends a message to Kafka asynchronously.
// The message is buffered and delivered in the background; delivery failures
// are logged, never surfaced to the caller.
func (p *Producer) ProduceAsync(msg *Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	p.client.Produce(context.Background(), toRecord(msg), func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("kafka delivery failed",
				"topic", r.Topic,
				"partition", r.Partition,
				"error", err,
			)
		}
	})
	return nil
}

// Healthy checks if the producer can communicate with brokers.
func (p *Producer) Healthy(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()
	return p.client.Ping(ctx) == nil
}

// Close gracefully shuts down the producer, flushing buffered messages.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil && p.logger != nil {
		p.logger.Warn("kafka producer closed with unflushed messages", "error", err)
	}

	p.client.Close()
	return nil
}

// NoopProducer discards all messages. Used when Kafka is not configured.
type NoopProducer struct{}

func (NoopProducer) Produce(context.Context, *Message) error { return nil }
func (NoopProducer) ProduceAsync(*Message) error             { return nil }
func (NoopProducer) Healthy(context.Context) bool            { return true }
func (NoopProducer) Close() error                            { return nil }

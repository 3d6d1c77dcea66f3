// Package notify publishes decision-committed events for the notification
// service. Delivery is fire-and-forget from the engine's perspective: a lost
// event costs a user-facing email, never verification state.
package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"bountydesk/internal/platform/kafka/producer"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
)

// DefaultTopic is where decision-committed events land.
const DefaultTopic = "bountydesk.verification.events"

// Producer is the slice of the Kafka producer the publisher needs.
type Producer interface {
	ProduceAsync(msg *producer.Message) error
}

// Event is the wire payload consumed by the notification service.
type Event struct {
	PrincipalID string    `json:"principal_id"`
	Kind        string    `json:"kind"`
	Outcome     string    `json:"outcome"`
	Actor       string    `json:"actor"`
	At          time.Time `json:"at"`
}

// Publisher emits decision events to Kafka, keyed by principal ID so events
// for one principal stay ordered within a partition.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// NewPublisher creates a decision event publisher. An empty topic selects
// DefaultTopic.
func NewPublisher(prod Producer, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: prod, topic: topic, logger: logger}
}

// DecisionCommitted publishes the outcome of a committed decision.
// Errors are logged, never returned: notification delivery must not affect
// the acknowledged decision.
func (p *Publisher) DecisionCommitted(principalID id.PrincipalID, kind models.Kind, outcome models.Status, actor models.Actor, at time.Time) {
	payload, err := json.Marshal(Event{
		PrincipalID: principalID.String(),
		Kind:        string(kind),
		Outcome:     string(outcome),
		Actor:       string(actor),
		At:          at,
	})
	if err != nil {
		if p.logger != nil {
			p.logger.Error("encode decision event", "error", err)
		}
		return
	}

	err = p.producer.ProduceAsync(&producer.Message{
		Topic: p.topic,
		Key:   []byte(principalID.String()),
		Value: payload,
	})
	if err != nil && p.logger != nil {
		p.logger.Error("publish decision event",
			"principal_id", principalID.String(),
			"error", err,
		)
	}
}

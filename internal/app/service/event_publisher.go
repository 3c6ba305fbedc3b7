package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lumenlearn/growthloop/internal/app/model"
	"github.com/nats-io/nats.go"
)

// EventPublisher publishes tracking events to NATS JetStream.
type EventPublisher struct {
	js nats.JetStreamContext
}

// NewEventPublisher creates a new tracking event publisher.
func NewEventPublisher(js nats.JetStreamContext) *EventPublisher {
	return &EventPublisher{js: js}
}

// Publish sends one tracking event to the growth stream.
func (p *EventPublisher) Publish(name, visitorID string, payload json.RawMessage) error {
	event := model.TrackingEvent{
		ID:        uuid.New().String(),
		Name:      name,
		VisitorID: visitorID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.GrowthStreamSubject, data)
	return err
}

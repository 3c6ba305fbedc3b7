package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenlearn/growthloop/internal/app/model"
	apprepository "github.com/lumenlearn/growthloop/internal/app/repository"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventConsumer drains tracking events from NATS JetStream into Postgres.
type EventConsumer struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	repo   apprepository.TrackingEventRepository
}

// NewEventConsumer creates a new tracking event consumer.
func NewEventConsumer(js nats.JetStreamContext, logger *zap.Logger, repo apprepository.TrackingEventRepository) *EventConsumer {
	return &EventConsumer{js: js, logger: logger, repo: repo}
}

// Start ensures the stream and durable consumer exist, then begins consuming.
func (c *EventConsumer) Start() error {
	_, err := c.js.StreamInfo(model.GrowthStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.GrowthStreamName,
			Subjects: []string{model.GrowthStreamSubject},
			MaxBytes: model.GrowthStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.GrowthStreamName, model.GrowthConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.GrowthStreamName, &nats.ConsumerConfig{
			Durable:   model.GrowthConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.GrowthStreamSubject, model.GrowthConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *EventConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var event model.TrackingEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal tracking event", zap.Error(err))
				msg.Nak()
				continue
			}

			if err := c.repo.Create(ctx, &event); err != nil {
				c.logger.Error("failed to store tracking event",
					zap.String("id", event.ID),
					zap.String("name", event.Name),
					zap.Error(err))
				msg.Nak()
				continue
			}

			c.logger.Debug("tracking event stored",
				zap.String("id", event.ID),
				zap.String("name", event.Name),
				zap.String("visitor_id", event.VisitorID),
				zap.Time("timestamp", event.Timestamp),
			)

			msg.Ack()
		}
	}
}

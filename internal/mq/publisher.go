package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys of meter lifecycle events
const (
	EventMeterCreated      = "meter.created"
	EventMeterValueUpdated = "meter.value.updated"
	EventMeterDeleted      = "meter.deleted"
)

// MeterEvent is published after a meter record changes
type MeterEvent struct {
	Event      string    `json:"event"`
	ID         string    `json:"id"`
	MeterID    string    `json:"meter_id,omitempty"`
	ConsumerID string    `json:"consumer_id,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes meter events to a topic exchange
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher opens a channel and declares the events exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareTopicExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishMeterEvent publishes event using its Event name as the routing key
func (p *Publisher) PublishMeterEvent(ctx context.Context, event MeterEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.Event,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published meter event",
		zap.String("routing_key", event.Event),
		zap.String("id", event.ID),
		zap.String("meter_id", event.MeterID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NopPublisher drops events; used when RabbitMQ is not configured
type NopPublisher struct{}

// PublishMeterEvent does nothing
func (NopPublisher) PublishMeterEvent(context.Context, MeterEvent) error { return nil }

// Package notify hands newly created alerts to a downstream sink.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AngelCh415/adsync/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, a models.Alert) error
	Close() error
}

// AlertEvent is the message body written for every new alert.
type AlertEvent struct {
	Event  string       `json:"event"`
	Alert  models.Alert `json:"alert"`
	SentAt time.Time    `json:"sentAt"`
}

const EventAlertCreated = "alert.created"

func encode(a models.Alert, now time.Time) ([]byte, error) {
	return json.Marshal(AlertEvent{Event: EventAlertCreated, Alert: a, SentAt: now.UTC()})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes alert events keyed by tenant so one tenant's alerts
// stay ordered within a partition.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{w: w, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, a models.Alert) error {
	data, err := encode(a, time.Now())
	if err != nil {
		return fmt.Errorf("failed to serialize alert: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(a.TenantID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "tenant_id", Value: []byte(a.TenantID)},
			{Key: "severity", Value: []byte(a.Severity)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// LogPublisher is used when no broker is configured.
type LogPublisher struct{ log *slog.Logger }

func NewLogPublisher(log *slog.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(ctx context.Context, a models.Alert) error {
	p.log.InfoContext(ctx, "alert created",
		slog.String("tenant_id", a.TenantID),
		slog.String("alert_id", a.ID),
		slog.String("campaign_id", a.CampaignID),
		slog.String("type", a.Type),
		slog.String("severity", string(a.Severity)))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

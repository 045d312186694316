package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is one review lifecycle event published to the audit stream.
type Event struct {
	ID            uuid.UUID              `json:"id"`
	Type          string                 `json:"type"`
	Actor         string                 `json:"actor"`
	ApplicationID *uuid.UUID             `json:"applicationId,omitempty"`
	AssignmentID  *uuid.UUID             `json:"assignmentId,omitempty"`
	AssessmentID  *uuid.UUID             `json:"assessmentId,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	TS            time.Time              `json:"ts"`
}

// Event types emitted by the review service.
const (
	EventAssignmentCreated   = "assignment.created"
	EventAssignmentDeleted   = "assignment.deleted"
	EventAssessmentStarted   = "assessment.started"
	EventAssessmentSubmitted = "assessment.submitted"
	EventAssessmentReturned  = "assessment.returned"
	EventAssessmentDeleted   = "assessment.deleted"
	EventResultArchived      = "result.archived"
)

// Publisher delivers review events to the audit stream. Delivery is
// best-effort; the service logs and continues on failure.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops events. Used when no brokers are configured and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev Event) error { return nil }

// KafkaPublisherConfig contains configurable parameters for the Kafka publisher.
type KafkaPublisherConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the topic review events are written to.
	Topic string

	// MaxAttempts is how many times a publish is retried on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout for Write operations.
	// Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// messageWriter is the slice of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher wraps a kafka-go Writer. Messages are keyed by application id
// so all events for one application land on the same partition, in order.
type KafkaPublisher struct {
	writer      messageWriter
	maxAttempts int
}

func NewKafkaPublisher(cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaPublisher{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	var key []byte
	if ev.ApplicationID != nil {
		key = []byte(ev.ApplicationID.String())
	} else {
		key = []byte(ev.ID.String())
	}

	msg := kafka.Message{Key: key, Value: value, Time: ev.TS}
	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// exponential backoff with cap before the next attempt
			time.Sleep(backoff)
			if backoff < 2*time.Second {
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka publish after %d attempts: %w", p.maxAttempts, lastErr)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

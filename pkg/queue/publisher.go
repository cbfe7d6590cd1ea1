package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/movira/transreg-backend/pkg/logger"
)

// Priority is one of the fixed processing priority tiers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Level maps a tier to the numeric AMQP message priority.
func (p Priority) Level() uint8 {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 5
	case PriorityHigh:
		return 7
	case PriorityUrgent:
		return 9
	default:
		return 5
	}
}

// ParsePriority parses a tier name; empty input defaults to medium.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), true
	case "":
		return PriorityMedium, true
	}
	return "", false
}

// ProcessingJob is the envelope handed to the out-of-process worker pool.
// QueueID is generated fresh per publish; a retry produces a new job.
type ProcessingJob struct {
	QueueID    string                 `json:"queue_id"`
	DocumentID uint                   `json:"document_id"`
	Priority   Priority               `json:"priority"`
	Options    map[string]interface{} `json:"options,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// VerificationEvent announces a verification decision.
type VerificationEvent struct {
	DocumentID uint      `json:"document_id"`
	EntityType string    `json:"entity_type"`
	EntityID   uint      `json:"entity_id"`
	Status     string    `json:"status"`
	VerifiedBy uint      `json:"verified_by"`
	Timestamp  time.Time `json:"timestamp"`
}

// Routing keys on the event exchange, selected by outcome.
const (
	RoutingKeyVerified = "document.verified"
	RoutingKeyRejected = "document.rejected"
)

// EventRoutingKey returns the event-exchange routing key for a decision
// outcome: approved goes to the verified channel, anything else is rejected.
func EventRoutingKey(status string) string {
	if status == "approved" {
		return RoutingKeyVerified
	}
	return RoutingKeyRejected
}

// Publisher hands jobs and events to the message broker. Fire-and-forget:
// no delivery receipt is consumed here.
type Publisher interface {
	PublishProcessingJob(ctx context.Context, job ProcessingJob) error
	PublishVerificationEvent(ctx context.Context, event VerificationEvent) error
	Close() error
}

type Config struct {
	URL                string
	ProcessingExchange string
	ProcessingQueue    string
	EventExchange      string
	JobTTL             time.Duration
	MaxPriority        uint8
}

type rabbitPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  Config

	mu sync.Mutex // amqp channels are not safe for concurrent publish
}

// NewRabbitPublisher connects to the broker and declares the processing
// exchange/queue pair and the event exchange.
func NewRabbitPublisher(cfg Config) (Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url required")
	}
	if cfg.ProcessingExchange == "" {
		cfg.ProcessingExchange = "documents.processing"
	}
	if cfg.ProcessingQueue == "" {
		cfg.ProcessingQueue = "documents.process"
	}
	if cfg.EventExchange == "" {
		cfg.EventExchange = "documents.events"
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 10 * time.Minute
	}
	if cfg.MaxPriority == 0 {
		cfg.MaxPriority = 10
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.ProcessingExchange, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare processing exchange: %w", err)
	}
	_, err = ch.QueueDeclare(cfg.ProcessingQueue, true, false, false, false, amqp.Table{
		"x-max-priority": int32(cfg.MaxPriority),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare processing queue: %w", err)
	}
	if err := ch.QueueBind(cfg.ProcessingQueue, cfg.ProcessingQueue, cfg.ProcessingExchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind processing queue: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.EventExchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare event exchange: %w", err)
	}

	logger.Info("RabbitMQ publisher ready", map[string]interface{}{
		"processing_exchange": cfg.ProcessingExchange,
		"processing_queue":    cfg.ProcessingQueue,
		"event_exchange":      cfg.EventExchange,
		"job_ttl":             cfg.JobTTL.String(),
	})

	return &rabbitPublisher{conn: conn, ch: ch, cfg: cfg}, nil
}

func (p *rabbitPublisher) PublishProcessingJob(ctx context.Context, job ProcessingJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode processing job: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.cfg.ProcessingExchange, p.cfg.ProcessingQueue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Priority:     job.Priority.Level(),
			Expiration:   strconv.FormatInt(p.cfg.JobTTL.Milliseconds(), 10),
			MessageId:    job.QueueID,
			Timestamp:    job.Timestamp,
			Body:         body,
		})
	if err != nil {
		logger.Error("Failed to publish processing job", err, map[string]interface{}{
			"document_id": job.DocumentID,
			"queue_id":    job.QueueID,
		})
		return err
	}

	logger.Info("Processing job published", map[string]interface{}{
		"document_id": job.DocumentID,
		"queue_id":    job.QueueID,
		"priority":    job.Priority,
	})
	return nil
}

func (p *rabbitPublisher) PublishVerificationEvent(ctx context.Context, event VerificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode verification event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	routingKey := EventRoutingKey(event.Status)
	err = p.ch.PublishWithContext(ctx, p.cfg.EventExchange, routingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
		})
	if err != nil {
		logger.Error("Failed to publish verification event", err, map[string]interface{}{
			"document_id": event.DocumentID,
			"routing_key": routingKey,
		})
		return err
	}

	logger.Info("Verification event published", map[string]interface{}{
		"document_id": event.DocumentID,
		"routing_key": routingKey,
	})
	return nil
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

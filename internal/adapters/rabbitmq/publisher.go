package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Event types published by the concierge service.
const (
	EventMessageReceived   = "message.received"
	EventReplyGenerated    = "reply.generated"
	EventReplySent         = "reply.sent"
	EventReplyFailed       = "reply.failed"
	EventConversationReset = "conversation.reset"
)

// Event is the JSON envelope written to the broker.
type Event struct {
	Event          string      `json:"event"`
	TenantID       int64       `json:"tenantId,omitempty"`
	ConversationID int64       `json:"conversationId,omitempty"`
	Payload        interface{} `json:"payload,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Config selects the broker and queue naming.
type Config struct {
	URL            string
	Queue          string
	QueuePrefix    string
	SpecificEvents []string
}

// redialInterval throttles reconnect attempts after the broker went away.
const redialInterval = 5 * time.Second

// ErrNotConnected is returned while the broker is unreachable.
var ErrNotConnected = errors.New("rabbitmq not connected")

type dialFunc func(url string) (*amqp091.Connection, error)

// Publisher writes events to RabbitMQ. A publisher without a URL is disabled and drops events.
// A lost connection is redialed on a later publish.
type Publisher struct {
	mu             sync.Mutex
	url            string
	dial           dialFunc
	lastDial       time.Time
	conn           *amqp091.Connection
	channel        *amqp091.Channel
	enabled        bool
	queue          string
	queuePrefix    string
	specificEvents map[string]bool
	declared       map[string]bool
}

// NewPublisher connects when cfg.URL is set. Connection failures are logged and retried on
// publish instead of failing startup.
func NewPublisher(cfg Config) *Publisher {
	return newPublisher(cfg, amqp091.Dial)
}

func newPublisher(cfg Config, dial dialFunc) *Publisher {
	p := &Publisher{
		url:            cfg.URL,
		dial:           dial,
		queue:          cfg.Queue,
		queuePrefix:    cfg.QueuePrefix,
		specificEvents: make(map[string]bool),
		declared:       make(map[string]bool),
	}
	if p.queue == "" {
		p.queue = "events"
	}
	if p.queuePrefix == "" {
		p.queuePrefix = "concierge"
	}
	for _, e := range cfg.SpecificEvents {
		if e = strings.TrimSpace(e); e != "" {
			p.specificEvents[e] = true
		}
	}
	if len(p.specificEvents) > 0 {
		log.Info().Interface("specificEvents", p.specificEvents).Msg("Specific RabbitMQ events configured")
	}

	if cfg.URL == "" {
		log.Info().Msg("RABBITMQ_URL is not set. RabbitMQ publishing disabled.")
		return p
	}
	p.enabled = true

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ, will retry on publish")
		return p
	}
	log.Info().Str("queue", p.queue).Str("prefix", p.queuePrefix).Msg("RabbitMQ connection established.")
	return p
}

// connect dials the broker and opens a channel. The caller holds p.mu.
func (p *Publisher) connect() error {
	p.lastDial = time.Now()
	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	p.conn = conn
	p.channel = ch
	p.declared = make(map[string]bool)
	return nil
}

// ensureChannel returns a live channel, redialing at most once per redialInterval.
// The caller holds p.mu.
func (p *Publisher) ensureChannel() (*amqp091.Channel, error) {
	if p.channel != nil && !p.channel.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.channel, nil
	}
	p.drop()
	if time.Since(p.lastDial) < redialInterval {
		return nil, ErrNotConnected
	}
	if err := p.connect(); err != nil {
		log.Warn().Err(err).Msg("RabbitMQ redial failed")
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	log.Info().Msg("RabbitMQ connection re-established.")
	return p.channel, nil
}

// drop releases a dead connection so the next publish redials. The caller holds p.mu.
func (p *Publisher) drop() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Enabled reports whether events are meant to reach the broker.
func (p *Publisher) Enabled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// QueueName returns the queue an event type is routed to.
func (p *Publisher) QueueName(eventType string) string {
	if p.specificEvents[eventType] {
		return p.queuePrefix + "_" + strings.ToLower(strings.ReplaceAll(eventType, ".", "_"))
	}
	return p.queuePrefix + "_" + p.queue
}

// Publish sends one event. Failures are logged and returned; callers treat them as best effort.
func (p *Publisher) Publish(ctx context.Context, eventType string, tenantID, conversationID int64, payload interface{}) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		log.Debug().Str("eventType", eventType).Msg("RabbitMQ publishing is disabled, not sending message")
		return nil
	}

	body, err := json.Marshal(Event{
		Event:          eventType,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	ch, err := p.ensureChannel()
	if err != nil {
		log.Debug().Err(err).Str("eventType", eventType).Msg("RabbitMQ unavailable, event dropped")
		return err
	}

	queueName := p.QueueName(eventType)
	if !p.declared[queueName] {
		_, err := ch.QueueDeclare(
			queueName,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			log.Error().Err(err).Str("queue", queueName).Msg("Could not declare RabbitMQ queue")
			p.drop()
			return fmt.Errorf("declare queue %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}

	err = ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Str("queue", queueName).Msg("Failed to publish to RabbitMQ")
		p.drop()
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	log.Debug().Str("eventType", eventType).Str("queue", queueName).Msg("Published message to RabbitMQ")
	return nil
}

// Close shuts the channel and connection down.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil
	}
	p.enabled = false
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing RabbitMQ channel")
		}
		p.channel = nil
	}
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

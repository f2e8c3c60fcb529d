package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	// DefaultTopic receives audit events when no topic is configured.
	DefaultTopic = "authrelay.audit"

	// DefaultDeliveryTimeout bounds how long an event may wait for the brokers.
	DefaultDeliveryTimeout = 30 * time.Second

	defaultMaxBuffered = 10000
	closeFlushTimeout  = 10 * time.Second
)

// KafkaConfig holds the audit producer settings.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	DeliveryTimeout time.Duration
	// MaxBuffered caps the events held while the brokers are slow or down.
	// Events beyond it are dropped.
	MaxBuffered int
	// FlushTimeout bounds the flush on Close.
	FlushTimeout time.Duration
}

// KafkaPublisher produces events to a Kafka topic, keyed by tenant.
// Records are produced asynchronously; delivery failures are logged.
type KafkaPublisher struct {
	client       *kgo.Client
	topic        string
	flushTimeout time.Duration
	logger       *slog.Logger
	mu           sync.RWMutex
	closed       bool
}

// NewKafkaPublisher creates a producer for cfg.Brokers (comma separated).
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	brokers := splitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	deliveryTimeout := cfg.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = DefaultDeliveryTimeout
	}
	maxBuffered := cfg.MaxBuffered
	if maxBuffered <= 0 {
		maxBuffered = defaultMaxBuffered
	}
	flushTimeout := cfg.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = closeFlushTimeout
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.DisableIdempotentWrite(),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordDeliveryTimeout(deliveryTimeout),
		kgo.MaxBufferedRecords(maxBuffered),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka audit producer: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic, flushTimeout: flushTimeout, logger: logger}, nil
}

// Publish buffers the event for delivery and returns immediately. When the
// buffer is full the event is dropped and logged.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		p.logger.WarnContext(ctx, "audit publisher closed, event dropped", "tenant_id", event.TenantID)
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "encode audit event", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.TenantID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}
	// The request context ends with the request; delivery must outlive it.
	p.client.TryProduce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		switch {
		case errors.Is(err, kgo.ErrMaxBuffered):
			p.logger.Warn("audit buffer full, event dropped",
				"topic", r.Topic,
				"tenant_id", string(r.Key),
			)
		case err != nil:
			p.logger.Error("audit delivery failed",
				"topic", r.Topic,
				"tenant_id", string(r.Key),
				"error", err,
			)
		}
	})
}

// Ping checks connectivity with the brokers.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered events and shuts the client down. Safe to call twice.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("audit producer closed with unflushed events", "error", err)
	}
	p.client.Close()
	return nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

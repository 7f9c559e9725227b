package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaEmitterConfig configures the promotion-event producer.
type KafkaEmitterConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic receives the promotion step events.
	Topic string

	// MaxAttempts is how many times a produce is retried on transient
	// error. Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 10s.
	WriteTimeout time.Duration
}

// KafkaEmitter publishes each audit event to a Kafka topic, keyed by
// application so a consumer sees one application's steps in order. It
// is a secondary sink; losing an emit never fails a step.
type KafkaEmitter struct {
	writer       *kafka.Writer
	maxAttempts  int
	writeTimeout time.Duration

	// writeFn is the produce call, swappable in tests.
	writeFn func(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaEmitter(cfg KafkaEmitterConfig) (*KafkaEmitter, error) {
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
	return &KafkaEmitter{
		writer:       w,
		maxAttempts:  cfg.MaxAttempts,
		writeTimeout: cfg.WriteTimeout,
		writeFn:      w.WriteMessages,
	}, nil
}

func (e *KafkaEmitter) Append(ctx context.Context, ev *Event) error {
	stamp(ev)
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := []byte(ev.ID)
	if meta, ok := ev.Metadata.(map[string]interface{}); ok {
		if app, ok := meta["application"].(string); ok && app != "" {
			key = []byte(app)
		}
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		msg := kafka.Message{Key: key, Value: value, Time: time.Now().UTC()}
		attemptCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
		err := e.writeFn(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", e.maxAttempts, lastErr)
}

func (e *KafkaEmitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}

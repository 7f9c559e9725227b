package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmitter(t *testing.T, cfg KafkaEmitterConfig) *KafkaEmitter {
	t.Helper()
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Topic == "" {
		cfg.Topic = "bookverse.promotions"
	}
	e, err := NewKafkaEmitter(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestKafkaEmitterRetriesUntilSuccess(t *testing.T) {
	e := testEmitter(t, KafkaEmitterConfig{MaxAttempts: 3, WriteTimeout: time.Second})

	attempts := 0
	e.writeFn = func(ctx context.Context, msgs ...kafka.Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("broker unavailable")
		}
		require.Len(t, msgs, 1)
		assert.Equal(t, []byte("bookverse-inventory"), msgs[0].Key)
		return nil
	}

	ev := &Event{
		EventType: EventPromotionStep,
		Payload:   map[string]interface{}{"version": "1.0.0"},
		Metadata:  map[string]interface{}{"application": "bookverse-inventory"},
	}
	require.NoError(t, e.Append(context.Background(), ev))
	assert.Equal(t, 3, attempts)
}

func TestKafkaEmitterExhaustsAttempts(t *testing.T) {
	e := testEmitter(t, KafkaEmitterConfig{MaxAttempts: 2, WriteTimeout: time.Second})

	e.writeFn = func(ctx context.Context, msgs ...kafka.Message) error {
		return errors.New("broker unavailable")
	}

	ev := &Event{EventType: EventPromotionStep, Payload: map[string]interface{}{}}
	err := e.Append(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestKafkaEmitterAttemptUsesConfiguredTimeout(t *testing.T) {
	e := testEmitter(t, KafkaEmitterConfig{MaxAttempts: 1, WriteTimeout: 30 * time.Second})

	e.writeFn = func(ctx context.Context, msgs ...kafka.Message) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Greater(t, time.Until(deadline), 10*time.Second)
		return nil
	}

	ev := &Event{EventType: EventPromotionStep, Payload: map[string]interface{}{}}
	require.NoError(t, e.Append(context.Background(), ev))
}

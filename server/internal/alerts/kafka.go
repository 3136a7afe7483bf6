package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sensorcal/sensorcal/server/internal/config"
)

// KafkaSink publishes every alert transition as a JSON message keyed by rule
// name, so all transitions of one rule land on the same partition in order.
type KafkaSink struct {
	w *kafka.Writer
}

// NewKafkaSink returns a sink writing to cfg.Topic on cfg.Brokers.
// The writer connects lazily on the first message.
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}}
}

func (k *KafkaSink) Name() string { return "kafka:" + k.w.Topic }

// Deliver writes a to the topic.
func (k *KafkaSink) Deliver(ctx context.Context, a Alert) error {
	msg, err := kafkaMessage(a)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error { return k.w.Close() }

func kafkaMessage(a Alert) (kafka.Message, error) {
	value, err := json.Marshal(a)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka encode: %w", err)
	}
	ts := a.FiredAt
	if a.ResolvedAt != nil {
		ts = *a.ResolvedAt
	}
	return kafka.Message{
		Key:   []byte(a.RuleName),
		Value: value,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "state", Value: []byte(a.State)},
			{Key: "severity", Value: []byte(a.Severity)},
		},
	}, nil
}

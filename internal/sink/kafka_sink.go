package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaSink publishes envelopes to a single topic.
type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
	now   func() time.Time
}

// NewKafkaSink connects a synchronous producer to brokers.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka sink: empty topic")
	}
	if cfg == nil {
		cfg = NewProducerConfig()
	}

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	return NewKafkaSinkWithProducer(p, topic), nil
}

// NewProducerConfig returns the producer configuration used by NewKafkaSink.
// SyncProducer requires both success and error returns.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return cfg
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, p: p, now: time.Now}
}

// Close shuts the producer down, flushing buffered messages.
func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// Emit marshals v into an envelope of type typ and sends it keyed by type.
func (s *KafkaSink) Emit(ctx context.Context, typ string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	b, err := json.Marshal(Envelope{
		Type: typ,
		TS:   s.now().UnixMilli(),
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(typ),
		Value: sarama.ByteEncoder(b),
	}
	partition, offset, err := s.p.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}
	log.Debugf("Emitted %s to %s[%d]@%d", typ, s.topic, partition, offset)
	return nil
}

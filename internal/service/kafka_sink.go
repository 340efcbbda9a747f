package service

import (
	"context"
	"encoding/json"
	"fmt"
	"lc_escrow/internal/domain"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink streams events to one topic keyed by LC or product, so consumers
// see each LC's history in order.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
		},
		topic: topic,
	}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, event domain.Event) error {
	msg, err := kafkaMessage(s.topic, event)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msg)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func kafkaMessage(topic string, event domain.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.PartitionKey()),
		Value: payload,
		Time:  event.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

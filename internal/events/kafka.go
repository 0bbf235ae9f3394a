package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes events to the attendance change topic, keyed by
// session so all marks of one session land in one partition in order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink dials the brokers and returns a sink for the topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// wireEvent is the JSON shape on the topic.
type wireEvent struct {
	Kind          string `json:"kind"`
	MarkID        string `json:"mark_id"`
	SessionID     string `json:"session_id"`
	MemberID      string `json:"member_id"`
	Status        string `json:"status"`
	FirstTimer    bool   `json:"first_timer"`
	MarkedAt      string `json:"marked_at"`
	SourceStation string `json:"source_station"`
	Timestamp     string `json:"timestamp"`
}

func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	payload, err := json.Marshal(wireEvent{
		Kind:          string(event.Kind),
		MarkID:        event.MarkID.String(),
		SessionID:     event.SessionID.String(),
		MemberID:      event.MemberID.String(),
		Status:        string(event.Status),
		FirstTimer:    event.FirstTimer,
		MarkedAt:      event.MarkedAt.UTC().Format(time.RFC3339Nano),
		SourceStation: event.SourceStation.String(),
		Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.SessionID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and releases the Kafka client.
func (s *KafkaSink) Close() {
	s.client.Close()
}

// Package mirror forwards telemetry samples to a Kafka topic for consumers
// that want the full stream rather than the latest retained values.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sweeney/irrigation-controller/internal/scheduler"
)

// DefaultTopic receives telemetry samples.
const DefaultTopic = "irrigation.telemetry"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON value written for each sample.
type Message struct {
	BootID string `json:"boot_id"`
	scheduler.Sample
}

// Kafka publishes samples asynchronously. Delivery failures are logged and
// otherwise ignored; the remote store stays the source of truth.
type Kafka struct {
	w      messageWriter
	bootID string
	topic  string
}

// NewKafka creates an async writer for brokers. Messages are keyed by bootID
// so one run's samples stay ordered on a single partition.
func NewKafka(brokers []string, topic, bootID string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka mirror: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka mirror: topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				slog.Warn("kafka mirror write failed", "topic", topic, "messages", len(msgs), "err", err)
			}
		},
	}
	return newKafka(w, topic, bootID), nil
}

func newKafka(w messageWriter, topic, bootID string) *Kafka {
	return &Kafka{w: w, bootID: bootID, topic: topic}
}

// FormatMessage builds the Kafka message for s.
func FormatMessage(bootID string, s scheduler.Sample) (kafka.Message, error) {
	value, err := json.Marshal(Message{BootID: bootID, Sample: s})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal sample: %w", err)
	}
	msg := kafka.Message{Key: []byte(bootID), Value: value}
	if !s.Timestamp.IsZero() {
		msg.Time = s.Timestamp
	}
	return msg, nil
}

// Mirror queues s for delivery. It satisfies scheduler.Mirror.
func (k *Kafka) Mirror(s scheduler.Sample) {
	msg, err := FormatMessage(k.bootID, s)
	if err != nil {
		slog.Warn("kafka mirror", "err", err)
		return
	}
	if err := k.w.WriteMessages(context.Background(), msg); err != nil {
		slog.Warn("kafka mirror enqueue failed", "topic", k.topic, "err", err)
	}
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}

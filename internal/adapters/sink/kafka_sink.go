package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/QShield/internal/domain"
	"github.com/ghalamif/QShield/internal/ports"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every outcome as one JSON message keyed by job id.
type KafkaSink struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.LeastBytes{},
		},
		topic:   topic,
		timeout: 10 * time.Second,
	}
}

func (k *KafkaSink) Name() string { return "kafka:" + k.topic }

func (k *KafkaSink) WriteBatch(outcomes []*domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(outcomes))
	for _, o := range outcomes {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal outcome %s: %w", o.JobID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.JobID),
			Value: data,
			Time:  o.CompletedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

var _ ports.DecisionSink = (*KafkaSink)(nil)

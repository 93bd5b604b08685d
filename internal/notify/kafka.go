package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier writes each notification to a topic named after its kind, keyed by
// appointment id so events for one appointment stay ordered.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := kafka.Message{
		Topic: string(n.Kind),
		Key:   []byte(n.AppointmentID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(n.ID)},
			{Key: "event_type", Value: []byte(n.Kind)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", n.Kind, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// KafkaReady dials the first broker, for readiness probes.
func KafkaReady(brokers []string) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			return fmt.Errorf("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

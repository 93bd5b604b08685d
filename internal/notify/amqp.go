package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes each notification to a durable queue named after its kind,
// through the default exchange. The connection is dialed lazily and redialed after
// a failure.
type AMQPNotifier struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	declared map[string]bool
}

func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{url: url, declared: make(map[string]bool)}
}

func (a *AMQPNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch, err := a.channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	queue := string(n.Kind)
	if !a.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			a.reset()
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		a.declared[queue] = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         string(n.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		a.reset()
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}

func (a *AMQPNotifier) channel() (*amqp.Channel, error) {
	if a.conn == nil || a.conn.IsClosed() {
		conn, err := amqp.Dial(a.url)
		if err != nil {
			return nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		a.conn = conn
		a.declared = make(map[string]bool)
	}

	ch, err := a.conn.Channel()
	if err != nil {
		a.reset()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

func (a *AMQPNotifier) reset() {
	if a.conn != nil {
		_ = a.conn.Close()
	}
	a.conn = nil
}

func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}

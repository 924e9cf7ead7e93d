package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON payload published for every notification.
type Message struct {
	Kind       order.NotificationKind `json:"kind"`
	OrderID    string                 `json:"order_id"`
	UserID     string                 `json:"user_id"`
	Status     order.Status           `json:"status"`
	TotalPrice string                 `json:"total_price"`
	Email      string                 `json:"email,omitempty"`
	Extra      map[string]string      `json:"extra,omitempty"`
	SentAt     time.Time              `json:"sent_at"`
}

// KafkaNotifier publishes notifications keyed by order id, so one order's messages
// stay ordered within a partition.
type KafkaNotifier struct {
	writer  MessageWriter
	timeout time.Duration
}

// SplitBrokers turns a comma-separated broker list into addresses, skipping blanks.
func SplitBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaNotifier(writer MessageWriter, timeout time.Duration) *KafkaNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaNotifier{writer: writer, timeout: timeout}
}

func (n *KafkaNotifier) Notify(ctx context.Context, note order.Notification) error {
	msg := Message{
		Kind:       note.Kind,
		OrderID:    note.Order.ID.String(),
		UserID:     note.Order.UserID.String(),
		Status:     note.Order.Status,
		TotalPrice: note.Order.TotalPrice.StringFixed(2),
		Extra:      note.Extra,
		SentAt:     time.Now().UTC(),
	}
	if note.Profile != nil {
		msg.Email = note.Profile.Email
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: failed to encode %s message: %w", note.Kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.OrderID),
		Value: data,
		Time:  msg.SentAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(note.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to publish %s for order %s: %w", note.Kind, msg.OrderID, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

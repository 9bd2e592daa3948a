package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/chatforge/commandd/pkg/types"
)

// AMQPNotifier implements Publisher on a RabbitMQ topic exchange. Events are
// published persistent with routing key "commands.reload.<serverId>", so a
// bot worker binds a durable queue per server (or a wildcard) and gets
// at-least-once delivery from the broker. There is no EventLog side: the
// broker's queues hold the backlog.
type AMQPNotifier struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// NewAMQPNotifier dials the broker and declares the topic exchange.
func NewAMQPNotifier(url, exchange string, logger *slog.Logger) (*AMQPNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPNotifier{
		conn:     conn,
		exchange: exchange,
		log:      logger,
	}, nil
}

// Publish sends one reload event to the exchange.
func (n *AMQPNotifier) Publish(ctx context.Context, serverID string) (*types.ReloadEvent, error) {
	ch, err := n.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	now := time.Now().UTC()
	event := &types.ReloadEvent{
		ID:        uuid.NewString(),
		Type:      types.EventTypeReloadCommands,
		ServerID:  serverID,
		CreatedAt: now,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	key := "commands.reload." + serverID
	err = ch.PublishWithContext(
		ctx, n.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.ID,
			Timestamp:    now,
			Body:         body,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	n.log.Info("published reload event",
		slog.String("key", key),
		slog.String("exchange", n.exchange),
	)
	return event, nil
}

// Close closes the broker connection.
func (n *AMQPNotifier) Close() error {
	return n.conn.Close()
}

var _ Publisher = (*AMQPNotifier)(nil)

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/streamhaven/mediasync/internal/config"
	"github.com/streamhaven/mediasync/internal/logging"
	"github.com/streamhaven/mediasync/pkg/models"
)

const originHeader = "x-origin"

// Relay mirrors broadcasts across process instances through an AMQP fanout
// exchange, so a client connected to one process still sees events for
// webhooks handled by another. Each process consumes from its own exclusive
// queue and skips messages it published itself.
type Relay struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	originID string
	hub      *Hub
	logger   *logging.Logger
}

// NewRelay connects to the broker and declares the fanout topology
func NewRelay(cfg config.RelayConfig, hub *Hub, logger *logging.Logger) (*Relay, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		cfg.Exchange,
		"fanout",
		false, // durable, broadcasts are fire-and-forget
		true,  // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// One exclusive queue per process instance
	q, err := channel.QueueDeclare(
		"",    // broker-assigned name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(q.Name, "", cfg.Exchange, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Relay{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
		queue:    q.Name,
		originID: uuid.New().String(),
		hub:      hub,
		logger:   logger,
	}, nil
}

// Publish mirrors a broadcast event to the fanout exchange
func (r *Relay) Publish(ctx context.Context, event models.BroadcastEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = r.channel.PublishWithContext(ctx,
		r.exchange,
		"",    // routing key ignored by fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Headers:     amqp.Table{originHeader: r.originID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Start consumes relayed events and re-broadcasts them into the local hub.
// Blocks until ctx is cancelled or the delivery channel closes.
func (r *Relay) Start(ctx context.Context) error {
	deliveries, err := r.channel.Consume(
		r.queue,
		"",    // consumer tag
		true,  // auto-ack, loss is acceptable for refresh signals
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	r.logger.Infof("Broadcast relay consuming from exchange %s", r.exchange)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("relay delivery channel closed")
			}
			if origin, _ := delivery.Headers[originHeader].(string); origin == r.originID {
				continue
			}

			var event models.BroadcastEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				r.logger.WithError(err).Warn("Discarding malformed relayed event")
				continue
			}

			r.hub.deliver(event)
		}
	}
}

// Close closes the broker connection
func (r *Relay) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

package events

import (
	"context"
	"fmt"
	"time"

	"craftbid/internal/models"
	"craftbid/utils"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

//go:generate mockgen -source=publisher.go -destination=mock_publisher.go -package=events

// Publisher delivers outbox events to downstream consumers. Delivery is
// at-least-once; consumers dedupe on the event id.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
	Close() error
}

// LogPublisher writes events to the application log. It is the default
// backend when no broker is configured.
type LogPublisher struct{}

// Publish logs the event
func (LogPublisher) Publish(_ context.Context, e models.Event) error {
	utils.Info("event published", map[string]any{
		"event_id":     e.EventID,
		"type":         e.Type,
		"aggregate_id": e.AggregateID,
		"payload":      string(e.Payload),
	})
	return nil
}

// Close is a no-op
func (LogPublisher) Close() error { return nil }

// StreamName is the JetStream stream holding every engine event
const StreamName = "CRAFTBID_EVENTS"

// NATSPublisher publishes to a JetStream stream and waits for the server ack
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSPublisher connects to url and ensures the event stream exists
func NewNATSPublisher(ctx context.Context, url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Auction engine domain events",
		Subjects:    []string{"craftbid.>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: create stream %s: %w", StreamName, err)
	}

	utils.Info("JetStream stream ready", map[string]any{"stream": StreamName, "url": url})
	return &NATSPublisher{conn: conn, js: js}, nil
}

// Publish sends the event with its id as the dedupe key
func (p *NATSPublisher) Publish(ctx context.Context, e models.Event) error {
	ack, err := p.js.Publish(ctx, Subject(e), e.Payload, jetstream.WithMsgID(e.EventID))
	if err != nil {
		return fmt.Errorf("events: publish %s to JetStream: %w", e.Type, err)
	}
	utils.Debug("event published to JetStream", map[string]any{
		"event_id": e.EventID,
		"subject":  Subject(e),
		"seq":      ack.Sequence,
	})
	return nil
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// RedisPublisher fans events out over Redis Pub/Sub, one channel per type
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("events: connect to Redis: %w", err)
	}
	return &RedisPublisher{client: rdb}, nil
}

// Channel returns the Pub/Sub channel for an event type,
// e.g. "craftbid:auction.ended"
func Channel(eventType string) string {
	return "craftbid:" + eventType
}

// Publish sends the event payload on its type channel
func (p *RedisPublisher) Publish(ctx context.Context, e models.Event) error {
	if err := p.client.Publish(ctx, Channel(e.Type), e.Payload).Err(); err != nil {
		return fmt.Errorf("events: publish %s to Redis: %w", e.Type, err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// ExchangeName is the topic exchange events are routed through
const ExchangeName = "craftbid.events"

// AMQPPublisher routes events through a durable topic exchange keyed by type
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials RabbitMQ and declares the event exchange
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", ExchangeName, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

// Publish routes the event with its type as routing key
func (p *AMQPPublisher) Publish(ctx context.Context, e models.Event) error {
	err := p.ch.PublishWithContext(ctx,
		ExchangeName,
		e.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.EventID,
			Timestamp:    e.CreatedAt,
			Type:         e.Type,
			Body:         e.Payload,
		},
	)
	if err != nil {
		return fmt.Errorf("events: publish %s to exchange %s: %w", e.Type, ExchangeName, err)
	}
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NewPublisher builds the publisher for backend: "log", "nats", "redis" or "amqp"
func NewPublisher(ctx context.Context, backend, natsURL, redisAddr, redisPassword string, redisDB int, amqpURL string) (Publisher, error) {
	switch backend {
	case "", "log":
		return LogPublisher{}, nil
	case "nats":
		return NewNATSPublisher(ctx, natsURL)
	case "redis":
		return NewRedisPublisher(ctx, redisAddr, redisPassword, redisDB)
	case "amqp":
		return NewAMQPPublisher(amqpURL)
	default:
		return nil, fmt.Errorf("events: unknown backend %q", backend)
	}
}

package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrNotConnected is returned when no channel is available.
var ErrNotConnected = errors.New("amqp channel not connected")

// Handler processes one decoded message. A non-nil error requeues it.
type Handler func(ctx context.Context, msg *AlertCheckMessage) error

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.RWMutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	breaker *gobreaker.CircuitBreaker
	closed  chan struct{}
	once    sync.Once
}

func newClient(url, exchangeName, queueName string) *Client {
	return &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		closed:       make(chan struct{}),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "amqp-publish",
			Timeout: openTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// NewClient dials the broker, declares the topology and keeps the
// connection alive in the background until Close.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := newClient(url, exchangeName, queueName)
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.watch()
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Routing key equals the queue name on the direct exchange.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return ch.Qos(1, 0, false)
}

// watch reconnects with exponential backoff whenever the connection drops.
func (c *Client) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		notify := conn.NotifyClose(make(chan *amqp091.Error, 1))
		select {
		case <-c.closed:
			return
		case amqpErr, ok := <-notify:
			if !ok && amqpErr == nil {
				// Closed by us.
				select {
				case <-c.closed:
					return
				default:
				}
			}
			slog.Warn("AMQP connection lost, reconnecting", "error", amqpErr)
		}

		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()

		for attempt := 0; ; attempt++ {
			select {
			case <-c.closed:
				return
			case <-time.After(exponentialBackoff(attempt)):
			}
			if err := c.connect(); err != nil {
				slog.Warn("AMQP reconnect failed", "attempt", attempt+1, "error", err)
				continue
			}
			slog.Info("AMQP reconnected", "attempts", attempt+1)
			break
		}
	}
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// PublishAlertCheck enqueues an alert check for the user.
func (c *Client) PublishAlertCheck(ctx context.Context, userID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := NewAlertCheckMessage(userID, reason).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		ch := c.currentChannel()
		if ch == nil {
			return nil, ErrNotConnected
		}
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return nil, ch.PublishWithContext(pubCtx, c.exchangeName, c.queueName, false, false,
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker is open: %w", err)
	}
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.DebugContext(ctx, "Published alert check message",
		"user_id", userID,
		"reason", reason,
		"queue", c.queueName)
	return nil
}

// ConsumeAlertChecks delivers messages to handler until ctx is done,
// re-subscribing after connection loss.
func (c *Client) ConsumeAlertChecks(ctx context.Context, handler Handler) error {
	for attempt := 0; ; {
		ch := c.currentChannel()
		if ch != nil {
			msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
			if err == nil {
				attempt = 0
				slog.InfoContext(ctx, "Started consuming alert check messages", "queue", c.queueName)
				if err := c.drain(ctx, msgs, handler); err != nil {
					return err
				}
				continue
			}
			slog.WarnContext(ctx, "Failed to start consuming", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case <-time.After(exponentialBackoff(attempt)):
			attempt++
		}
	}
}

// drain returns nil when the delivery channel closes so the caller can
// re-subscribe, and ctx.Err() on cancellation.
func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				slog.WarnContext(ctx, "Delivery channel closed")
				return nil
			}
			handleDelivery(ctx, d, handler)
		}
	}
}

// handleDelivery acks on success, requeues on handler error and drops
// malformed bodies.
func handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) {
	msg, err := AlertCheckMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to decode message", "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "error", nackErr)
		}
		return
	}

	if err := handler(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			"error", err,
			"user_id", msg.UserID,
			"reason", msg.Reason)
		if nackErr := d.Nack(false, true); nackErr != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "error", nackErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		slog.ErrorContext(ctx, "Failed to ack message", "error", err)
	}
}

// Ping reports whether a channel is currently open.
func (c *Client) Ping(context.Context) error {
	ch := c.currentChannel()
	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) Close() error {
	c.once.Do(func() { close(c.closed) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, ErrNotConnected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

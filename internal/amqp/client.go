// Package amqp publishes committed ledger events to a durable RabbitMQ
// queue and consumes them in the export worker.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"khanevadati/internal/core"
	"khanevadati/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
	prefetchCount  = 10
)

var ErrCircuitOpen = errors.New("amqp: circuit breaker is open")

// Handler processes one event. Returning an error requeues the delivery.
type Handler func(ctx context.Context, ev core.Event) error

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	failureMu    sync.Mutex
	lastFailure  time.Time
}

// NewClient dials url and declares the exchange, the queue and their binding.
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if _, err := c.ensureChannel(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) lgr() *log.Logger {
	if c.logger == nil {
		c.logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentAMQP)
	}
	return c.logger
}

// ensureChannel returns the open channel, reconnecting when it was lost.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.conn = conn
	c.channel = ch
	return ch, nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// The queue name doubles as the routing key on the direct exchange.
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish sends ev as a persistent JSON message. It satisfies ledger.Publisher.
func (c *Client) Publish(ctx context.Context, ev core.Event) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Operation),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.resetConnection()
		}
		c.recordFailure()
		return fmt.Errorf("publish event: %w", err)
	}
	c.recordSuccess()

	c.lgr().DebugContext(ctx, "Published ledger event",
		log.FieldEventID, ev.ID,
		log.FieldOperation, string(ev.Operation),
		log.FieldNamespace, ev.Namespace,
		"exchange", c.exchangeName)
	return nil
}

// Consume delivers events to handler until ctx is cancelled, reconnecting
// with exponential backoff whenever the broker goes away.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		processed, err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			c.lgr().InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if processed {
			attempt = 0
		}
		c.resetConnection()
		wait := exponentialBackoff(attempt)
		attempt++
		c.lgr().WarnContext(ctx, "Consumer interrupted, reconnecting",
			log.FieldError, err, "backoff", wait.String(), "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler Handler) (bool, error) {
	ch, err := c.ensureChannel()
	if err != nil {
		return false, err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return false, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}

	c.lgr().InfoContext(ctx, "Started consuming ledger events", "queue", c.queueName)
	processed := false
	for {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return processed, errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, delivery, handler)
			processed = true
		}
	}
}

// handleDelivery acks on success, requeues on handler failure and drops
// bodies that can never be decoded.
func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) {
	ev, err := DecodeEvent(d.Body)
	if err != nil {
		c.lgr().ErrorContext(ctx, "Dropping malformed event", log.FieldError, err, "message_id", d.MessageId)
		if err := d.Nack(false, false); err != nil {
			c.lgr().ErrorContext(ctx, "Failed to nack delivery", log.FieldError, err)
		}
		return
	}

	if err := handler(ctx, ev); err != nil {
		c.lgr().ErrorContext(ctx, "Failed to handle event",
			log.FieldError, err, log.FieldEventID, ev.ID, log.FieldOperation, string(ev.Operation))
		if err := d.Nack(false, true); err != nil {
			c.lgr().ErrorContext(ctx, "Failed to nack delivery", log.FieldError, err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.lgr().ErrorContext(ctx, "Failed to ack delivery", log.FieldError, err, log.FieldEventID, ev.ID)
		return
	}
	c.lgr().DebugContext(ctx, "Processed ledger event",
		log.FieldEventID, ev.ID, log.FieldOperation, string(ev.Operation))
}

// Ping reports whether the broker connection is usable.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.ensureChannel()
	return err
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failureMu.Lock()
	last := c.lastFailure
	c.failureMu.Unlock()
	if time.Since(last) > openTimeout {
		// Let one attempt through.
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.failureMu.Lock()
	c.lastFailure = time.Now()
	c.failureMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.lgr().Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) resetConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

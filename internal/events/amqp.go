package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/m3rciful/filmbot/core/logger"
)

// DefaultQueue is the durable queue changes are routed to.
const DefaultQueue = "catalog.events"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("events: publisher closed")

// AMQPPublisher keeps one connection and channel open and redials lazily after
// a failure. Publishing is serialized because an AMQP channel is not safe for
// concurrent use.
type AMQPPublisher struct {
	url   string
	queue string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewAMQPPublisher prepares a publisher; the broker is contacted on first use.
func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{url: url, queue: queue}
}

// Connect dials the broker and declares the queue so configuration errors show at startup.
func (p *AMQPPublisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensure()
}

// ensure must be called with mu held.
func (p *AMQPPublisher) ensure() error {
	if p.closed {
		return ErrClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp declare %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// reset must be called with mu held.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Publish sends c as a persistent JSON message. A failed publish drops the channel
// so the next call redials.
func (p *AMQPPublisher) Publish(ctx context.Context, c Change) error {
	msg, err := publishing(c)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensure(); err != nil {
		return p.fail(ctx, c, err)
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset()
		return p.fail(ctx, c, fmt.Errorf("amqp publish: %w", err))
	}
	logger.Debug(ctx, "service.events", "event.published",
		slog.String("type", string(c.Type)),
		slog.Int64("film_id", c.FilmID),
		slog.String("queue", p.queue),
	)
	return nil
}

// Close releases the connection. Later Publish calls return ErrClosed.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}

func (p *AMQPPublisher) fail(ctx context.Context, c Change, err error) error {
	logger.Warn(ctx, "service.events", "event.publish",
		slog.String("status", "error"),
		slog.String("type", string(c.Type)),
		slog.Int64("film_id", c.FilmID),
		slog.String("queue", p.queue),
		logger.Err(err),
	)
	return err
}

func publishing(c Change) (amqp.Publishing, error) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	c.At = c.At.UTC()
	body, err := json.Marshal(c)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s: %w", c.Type, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    c.At,
		Type:         string(c.Type),
		Body:         body,
	}, nil
}

// Package amqp publishes match events to a durable queue consumed by the
// downstream incident engine.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	applog "github.com/fyeo/eventmatcher/internal/logger"
	"github.com/fyeo/eventmatcher/internal/ports"
)

// recentSize bounds how many published hashes are remembered for dedup.
const recentSize = 4096

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements ports.EventSink over AMQP. Each event is published
// once per process; the hash travels as the message id so consumers can
// dedup across restarts.
type Publisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	queue  string
	recent *lru.Cache[string, struct{}]
	logger *zap.Logger
}

// Dial connects to url and declares queue as durable.
func Dial(url, queue string, logger *zap.Logger) (*Publisher, error) {
	if url == "" || queue == "" {
		return nil, errors.New("amqp url and queue are required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare queue %s: %w", queue, err)
	}
	logger = applog.OrNop(logger)
	logger.Info("amqp queue declared",
		zap.String("queue", q.Name),
		zap.Int("messages", q.Messages),
		zap.Int("consumers", q.Consumers))

	p, err := newPublisher(ch, q.Name, recentSize, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string, remember int, logger *zap.Logger) (*Publisher, error) {
	recent, err := lru.New[string, struct{}](remember)
	if err != nil {
		return nil, fmt.Errorf("amqp dedup cache: %w", err)
	}
	return &Publisher{ch: ch, queue: queue, recent: recent, logger: applog.OrNop(logger)}, nil
}

// WriteEvent implements ports.EventSink. It reports false for an event this
// publisher already sent.
func (p *Publisher) WriteEvent(ctx context.Context, ev ports.StoredEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ev.Hash == "" {
		return false, errors.New("event hash is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recent.Contains(ev.Hash) {
		return false, nil
	}
	err := p.ch.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.Hash,
			Timestamp:    time.Now().UTC(),
			Body:         ev.Body,
		},
	)
	if err != nil {
		return false, fmt.Errorf("amqp publish %s: %w", ev.Hash, err)
	}
	p.recent.Add(ev.Hash, struct{}{})
	p.logger.Debug("event published", zap.String("hash", ev.Hash), zap.String("queue", p.queue))
	return true, nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// AngelaMos | 2026
// amqp.go

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

	"github.com/whisperme/whisper-api/internal/config"
)

const (
	reconnectDelay       = 2 * time.Second
	maxReconnectAttempts = 10
	contentTypeJSON      = "application/json"
)

var ErrBrokerUnavailable = errors.New("event broker unavailable")

type brokerConn interface {
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type brokerChannel interface {
	ExchangeDeclare(
		name, kind string,
		durable, autoDelete, internal, noWait bool,
		args amqp.Table,
	) error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type dialFunc func(url string) (brokerConn, brokerChannel, error)

func dialBroker(url string) (brokerConn, brokerChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	return conn, ch, nil
}

// AMQPPublisher publishes events to a durable topic exchange. A dropped
// connection or channel is re-dialed in the background; publishes made
// while it is down fail with ErrBrokerUnavailable.
type AMQPPublisher struct {
	cfg    config.AMQPConfig
	logger *slog.Logger
	dial   dialFunc

	mu      sync.RWMutex
	conn    brokerConn
	channel brokerChannel

	ctx    context.Context
	cancel context.CancelFunc
}

func NewAMQPPublisher(
	cfg config.AMQPConfig,
	logger *slog.Logger,
) (*AMQPPublisher, error) {
	return newAMQPPublisher(cfg, logger, dialBroker)
}

func newAMQPPublisher(
	cfg config.AMQPConfig,
	logger *slog.Logger,
	dial dialFunc,
) (*AMQPPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())

	p := &AMQPPublisher{
		cfg:    cfg,
		logger: logger.With("component", "events"),
		dial:   dial,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := p.connect(); err != nil {
		cancel()
		return nil, err
	}

	return p, nil
}

// connect registers the close notifiers before the channel is published to
// Publish, so a close that races the dial is still observed.
func (p *AMQPPublisher) connect() error {
	conn, ch, err := p.dial(p.cfg.URL)
	if err != nil {
		return err
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	if err := ch.ExchangeDeclare(
		p.cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()   //nolint:errcheck // already failing
		_ = conn.Close() //nolint:errcheck // already failing
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		_ = ch.Close()   //nolint:errcheck // publisher closed
		_ = conn.Close() //nolint:errcheck // publisher closed
		return ErrBrokerUnavailable
	}
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("connected to broker", "exchange", p.cfg.Exchange)

	go p.monitor(conn, connClosed, chanClosed)

	return nil
}

func (p *AMQPPublisher) monitor(
	conn brokerConn,
	connClosed, chanClosed <-chan *amqp.Error,
) {
	var err *amqp.Error
	select {
	case err = <-connClosed:
	case err = <-chanClosed:
	case <-p.ctx.Done():
		return
	}
	if p.ctx.Err() != nil {
		return
	}

	if err != nil {
		p.logger.Error("broker link lost", "error", err)
	} else {
		p.logger.Error("broker link closed")
	}

	_ = conn.Close() //nolint:errcheck // replaced by reconnect
	p.reconnect()
}

func (p *AMQPPublisher) reconnect() {
	p.mu.Lock()
	p.channel = nil
	p.conn = nil
	p.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := p.connect(); err == nil {
			return
		}

		delay := reconnectDelay * time.Duration(attempt)
		p.logger.Warn("broker reconnect failed",
			"attempt", attempt,
			"retry_in", delay,
		)

		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			return
		}
	}

	p.logger.Error("broker reconnect attempts exhausted")
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("publish %s: %w", event.Type, ErrBrokerUnavailable)
	}

	err = ch.PublishWithContext(ctx,
		p.cfg.Exchange,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	return nil
}

// Ping reports whether the broker connection is currently usable.
func (p *AMQPPublisher) Ping(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.conn == nil || p.conn.IsClosed() {
		return ErrBrokerUnavailable
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
		p.channel = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}

	return errors.Join(errs...)
}

// AngelaMos | 2026
// amqp_test.go

package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperme/whisper-api/internal/config"
)

type fakeConn struct {
	mu         sync.Mutex
	notify     chan *amqp.Error
	closed     bool
	deadOnDial bool
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadOnDial {
		c.closed = true
		close(receiver)
		return receiver
	}
	c.notify = receiver
	return receiver
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeChannel struct {
	mu        sync.Mutex
	notify    chan *amqp.Error
	published []amqp.Publishing
	keys      []string
}

func (c *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return nil
}

func (c *fakeChannel) PublishWithContext(
	_ context.Context,
	_, key string,
	_, _ bool,
	msg amqp.Publishing,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = receiver
	return receiver
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) brokerClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify <- &amqp.Error{Code: amqp.ChannelError, Reason: "PRECONDITION_FAILED"}
	close(c.notify)
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

type broker struct {
	mu       sync.Mutex
	conns    []*fakeConn
	channels []*fakeChannel
	dials    int
}

func (b *broker) dial(string) (brokerConn, brokerChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dials >= len(b.conns) {
		return nil, nil, errors.New("connection refused")
	}
	conn, ch := b.conns[b.dials], b.channels[b.dials]
	b.dials++
	return conn, ch, nil
}

func newBroker(conns ...*fakeConn) *broker {
	b := &broker{conns: conns}
	for range conns {
		b.channels = append(b.channels, &fakeChannel{})
	}
	return b
}

func newTestPublisher(t *testing.T, b *broker) *AMQPPublisher {
	t.Helper()

	p, err := newAMQPPublisher(
		config.AMQPConfig{URL: "amqp://test", Exchange: "whisper.events"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		b.dial,
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func sample() Event {
	return Event{
		ID:         "evt-1",
		Type:       CallEnded,
		SessionID:  "s-1",
		Reason:     "time_up",
		OccurredAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestPublishRoutesByType(t *testing.T) {
	b := newBroker(&fakeConn{})
	p := newTestPublisher(t, b)

	require.NoError(t, p.Publish(context.Background(), sample()))

	ch := b.channels[0]
	require.Equal(t, 1, ch.count())
	assert.Equal(t, []string{"call.ended"}, ch.keys)

	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "s-1", decoded.SessionID)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestChannelClosedByBrokerReconnects(t *testing.T) {
	b := newBroker(&fakeConn{}, &fakeConn{})
	p := newTestPublisher(t, b)

	b.channels[0].brokerClose()

	require.Eventually(t, func() bool {
		return p.Publish(context.Background(), sample()) == nil &&
			b.channels[1].count() > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, b.conns[0].IsClosed())
}

func TestConnectionClosedDuringDialReconnects(t *testing.T) {
	b := newBroker(&fakeConn{deadOnDial: true}, &fakeConn{})
	p := newTestPublisher(t, b)

	require.Eventually(t, func() bool {
		return p.Publish(context.Background(), sample()) == nil &&
			b.channels[1].count() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClosedPublisher(t *testing.T) {
	b := newBroker(&fakeConn{})
	p := newTestPublisher(t, b)

	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), sample())
	require.ErrorIs(t, err, ErrBrokerUnavailable)
	require.ErrorIs(t, p.Ping(context.Background()), ErrBrokerUnavailable)
	assert.Equal(t, 1, b.dials)
}

func TestDialFailure(t *testing.T) {
	_, err := newAMQPPublisher(
		config.AMQPConfig{URL: "amqp://test"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		newBroker().dial,
	)
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), sample()))
}

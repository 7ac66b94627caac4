package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/account-service/internal/application/account"
	appCtx "github.com/baechuer/account-service/internal/pkg/context"
)

const (
	DefaultExchange = "account.events"

	RoutingVerificationEmail  = "account.email.verification.requested"
	RoutingPasswordResetEmail = "account.email.password_reset.requested"

	producer = "account-service"

	// window to wait for Return / Confirm
	publishWait = 2 * time.Second
	// a Return for a mandatory publish arrives before its Ack, but on a
	// different frame; give it a moment to land
	returnGrace = 50 * time.Millisecond
)

// Envelope is what email consumers receive.
type Envelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

type publishFunc func(ctx context.Context, routingKey string, msg amqp.Publishing) error

// Dispatcher implements account.EmailDispatcher by publishing email requests
// to a topic exchange in confirm mode with mandatory routing.
type Dispatcher struct {
	url      string
	exchange string
	now      func() time.Time

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return

	publish publishFunc
}

func NewDispatcher(url, exchange string) (*Dispatcher, error) {
	d := newDispatcher(url, exchange)
	d.publish = d.publishConfirmed
	if err := d.connect(); err != nil {
		return nil, err
	}
	return d, nil
}

func newDispatcher(url, exchange string) *Dispatcher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Dispatcher{url: url, exchange: exchange, now: time.Now}
}

func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetConn()
	return nil
}

func (d *Dispatcher) SendVerification(ctx context.Context, msg account.VerificationEmail) error {
	return d.publishJSON(ctx, RoutingVerificationEmail, msg)
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, msg account.PasswordResetEmail) error {
	return d.publishJSON(ctx, RoutingPasswordResetEmail, msg)
}

func (d *Dispatcher) publishJSON(ctx context.Context, routingKey string, payload any) error {
	msg, err := d.buildMessage(ctx, payload)
	if err != nil {
		return err
	}

	// never block a request on a slow broker
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishWait)
		defer cancel()
	}
	return d.publish(ctx, routingKey, msg)
}

func (d *Dispatcher) buildMessage(ctx context.Context, payload any) (amqp.Publishing, error) {
	now := d.now().UTC()
	env := Envelope[any]{
		Version:    1,
		Producer:   producer,
		TraceID:    appCtx.GetRequestID(ctx),
		MessageID:  uuid.NewString(),
		OccurredAt: now,
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal payload: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.MessageID,
		CorrelationId: env.TraceID,
		Timestamp:     now,
		Body:          body,
	}, nil
}

func (d *Dispatcher) connect() error {
	conn, err := amqp.Dial(d.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		d.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	d.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	d.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	d.conn = conn
	d.ch = ch
	return nil
}

func (d *Dispatcher) ensureConnected() error {
	if d.conn != nil && !d.conn.IsClosed() && d.ch != nil {
		return nil
	}
	return d.connect()
}

func (d *Dispatcher) publishConfirmed(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureConnected(); err != nil {
		return err
	}

	// stale confirms/returns would be mistaken for this publish
drain:
	for {
		select {
		case <-d.confirmCh:
		case <-d.returnCh:
		default:
			break drain
		}
	}

	if err := d.ch.PublishWithContext(ctx, d.exchange, routingKey, true, false, msg); err != nil {
		d.resetConn()
		return fmt.Errorf("publish failed: %w", err)
	}

	select {
	case ret := <-d.returnCh:
		return unroutable(routingKey, ret)

	case conf := <-d.confirmCh:
		select {
		case ret := <-d.returnCh:
			return unroutable(routingKey, ret)
		case <-time.After(returnGrace):
		}
		if !conf.Ack {
			return fmt.Errorf("rabbitmq nack: key=%s deliveryTag=%d", routingKey, conf.DeliveryTag)
		}
		return nil

	case <-ctx.Done():
		return fmt.Errorf("rabbitmq publish timeout: key=%s: %w", routingKey, ctx.Err())
	}
}

func unroutable(key string, ret amqp.Return) error {
	return fmt.Errorf("rabbitmq unroutable: key=%s code=%d text=%s", key, ret.ReplyCode, ret.ReplyText)
}

func (d *Dispatcher) resetConn() {
	if d.ch != nil {
		_ = d.ch.Close()
		d.ch = nil
	}
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

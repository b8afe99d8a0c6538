package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/logging"
)

// Publisher sends sync events.  Implementations never block the caller's
// operation on broker problems for longer than ctx allows.
type Publisher interface {
	Publish(ctx context.Context, ev SyncEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, SyncEvent) error { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []SyncEvent
}

func (r *Recorder) Publish(_ context.Context, ev SyncEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []SyncEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SyncEvent(nil), r.events...)
}

// AMQP publishes to QueueName over RabbitMQ.  Each Publish dials, declares
// the durable queue and sends one persistent message; failures are logged
// and returned so callers may ignore them.
type AMQP struct {
	url string
	log *zap.Logger
}

func NewAMQP(url string, log *zap.Logger) *AMQP {
	return &AMQP{url: url, log: logging.OrNop(log)}
}

func (p *AMQP) Publish(ctx context.Context, ev SyncEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", QueueName, false, false, pub); err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Rabbit struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialRabbit connects and declares the topic exchange events go to.
func DialRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

// BindQueue declares a durable queue bound to the exchange for each key.
func (r *Rabbit) BindQueue(name string, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, err := r.ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for _, rk := range keys {
		if err := r.ch.QueueBind(q.Name, rk, r.exchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rabbit) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx, r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// EventSink receives every dispatched event after its notifications are
// stored. Used to fan domain events out to other services.
type EventSink interface {
	PublishEvent(ctx context.Context, ev Event) error
}

type eventMessage struct {
	Type       Type      `json:"type"`
	Message    string    `json:"message"`
	ItemID     string    `json:"item_id,omitempty"`
	ToUser     string    `json:"to_user,omitempty"`
	Meta       Meta      `json:"meta,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AMQPPublisher publishes events with routing key "storeroom.<type>".
type AMQPPublisher struct{ Rabbit *Rabbit }

func RoutingKey(t Type) string { return "storeroom." + string(t) }

func (p AMQPPublisher) PublishEvent(ctx context.Context, ev Event) error {
	return p.Rabbit.PublishJSON(ctx, RoutingKey(ev.Type), eventMessage{
		Type:       ev.Type,
		Message:    ev.Message,
		ItemID:     ev.ItemID,
		ToUser:     ev.ToUser,
		Meta:       ev.Meta,
		OccurredAt: ev.At,
	})
}

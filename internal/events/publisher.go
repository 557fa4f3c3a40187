package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobEvent is emitted when a job reaches a terminal state.
type JobEvent struct {
	JobID        string    `json:"job_id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	VideoID      string    `json:"video_id,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// RoutingKey is job.<type>.<status>.
func (e JobEvent) RoutingKey() string {
	return fmt.Sprintf("job.%s.%s", e.Type, e.Status)
}

type Publisher interface {
	PublishJobEvent(ctx context.Context, event JobEvent) error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishJobEvent(context.Context, JobEvent) error { return nil }

// AMQPPublisher publishes job events to a durable topic exchange.
type AMQPPublisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishJobEvent(ctx context.Context, event JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		event.RoutingKey(),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

func (p *AMQPPublisher) Close() error {
	return p.channel.Close()
}

// internal/messaging/rabbit.go
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"tasks-api/internal/metrics"
)

const EventTaskCreated = "task.created"

// TaskEvent is published once per stored task.
type TaskEvent struct {
	Type       string    `json:"type"`
	Tenant     string    `json:"tenant"`
	InsertedID any       `json:"insertedId"`
	At         time.Time `json:"at"`
}

func (e TaskEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func QueueName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_tasks", tenantID)
}

func DeadLetterQueueName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_tasks_dlq", tenantID)
}

type RabbitClient struct {
	conn *amqp.Connection
	log  logrus.FieldLogger

	// guards channel; amqp channels must not be shared across goroutines
	mu      sync.Mutex
	channel *amqp.Channel
	URL     string
}

func NewRabbitClient(url string, log logrus.FieldLogger) (*RabbitClient, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitClient{
		conn:    conn,
		channel: ch,
		URL:     url,
		log:     log.WithField("component", "rabbit"),
	}, nil
}

// GetChannel exposes the shared channel. Callers must not use it
// concurrently with the client's own methods.
func (r *RabbitClient) GetChannel() *amqp.Channel {
	return r.channel
}

// DeclareQueue creates a tenant-specific durable queue
func (r *RabbitClient) DeclareQueue(tenantID string) error {
	queueName := QueueName(tenantID)
	dlqName := DeadLetterQueueName(tenantID)

	r.mu.Lock()
	defer r.mu.Unlock()

	// 1. DLQ
	_, err := r.channel.QueueDeclare(
		dlqName,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	// 2. Main Queue with DLQ binding
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	_, err = r.channel.QueueDeclare(
		queueName,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare main queue: %w", err)
	}

	r.log.WithField("tenant", tenantID).Info("queues declared")
	return nil
}

// Publish sends a message to the specified tenant queue
func (r *RabbitClient) Publish(tenantID string, body []byte) error {
	queueName := QueueName(tenantID)

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.channel.Publish(
		"",        // default exchange
		queueName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queueName, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}

func (r *RabbitClient) UpdateQueueDepth(tenantID string) {
	queueName := QueueName(tenantID)

	r.mu.Lock()
	q, err := r.channel.QueueInspect(queueName)
	r.mu.Unlock()
	if err != nil {
		r.log.WithError(err).WithField("tenant", tenantID).Warn("failed to inspect queue")
		return
	}

	metrics.QueueDepth.WithLabelValues(tenantID).Set(float64(q.Messages))
}

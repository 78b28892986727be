package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/pipeline"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
)

const SceneQueue = "ndvi_scene_events"

// SceneEvent is published for every persisted scene.
type SceneEvent struct {
	Type          string    `json:"type"`
	RunID         string    `json:"run_id"`
	AOI           string    `json:"aoi"`
	SceneID       string    `json:"scene_id"`
	Acquired      time.Time `json:"acquired"`
	BlankFraction float64   `json:"blank_fraction"`
	Artifacts     []string  `json:"artifacts"`
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQConnection holds the RabbitMQ connection and channel
type RabbitMQConnection struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
}

func ConnectRabbitMQ(url string) (*RabbitMQConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	slog.Info("Connected to RabbitMQ")
	return &RabbitMQConnection{Connection: conn, Channel: ch}, nil
}

func (r *RabbitMQConnection) Close() error {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			slog.Error("failed to close RabbitMQ channel", "error", err)
		}
	}
	if r.Connection != nil {
		if err := r.Connection.Close(); err != nil {
			slog.Error("failed to close RabbitMQ connection", "error", err)
			return err
		}
	}
	return nil
}

// ScenePublisher publishes scene events and is usable as a pipeline hook.
type ScenePublisher struct {
	ch    channel
	RunID string

	published atomic.Int64
	failed    atomic.Int64
}

func NewScenePublisher(conn *RabbitMQConnection, runID string) *ScenePublisher {
	return &ScenePublisher{ch: conn.Channel, RunID: runID}
}

func (p *ScenePublisher) Name() string { return "scene events" }

func (p *ScenePublisher) SceneProcessed(ctx context.Context, layout store.Layout, scene pipeline.Scene) error {
	return p.Publish(ctx, SceneEvent{
		Type:          "scene.processed",
		RunID:         p.RunID,
		AOI:           layout.AOI,
		SceneID:       scene.ID,
		Acquired:      scene.Acquired,
		BlankFraction: scene.BlankFraction,
		Artifacts:     scene.Artifacts,
	})
}

func (p *ScenePublisher) Publish(ctx context.Context, event SceneEvent) error {
	_, err := p.ch.QueueDeclare(
		SceneQueue, // queue name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to marshal scene event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, "", SceneQueue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("failed to publish scene event: %w", err)
	}

	p.published.Add(1)
	slog.Info("Scene event published", "queue", SceneQueue, "scene", event.SceneID)
	return nil
}

// Metrics returns publish counters.
func (p *ScenePublisher) Metrics() map[string]any {
	return map[string]any{
		"messages_published": p.published.Load(),
		"messages_failed":    p.failed.Load(),
		"queue":              SceneQueue,
	}
}

// Package amqpsink publishes accepted items to a RabbitMQ exchange so
// downstream consumers can index them.
package amqpsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aluiziolira/go-scrape-wuxia/models"
	"github.com/aluiziolira/go-scrape-wuxia/pipeline"
)

// Config addresses the broker and exchange.
type Config struct {
	URL      string
	Exchange string
}

// Sink publishes one message per item with routing key "books" or
// "chapters". Messages carry the run ID as their correlation ID.
type Sink struct {
	cfg     Config
	logger  *slog.Logger
	conn    *amqp.Connection
	channel *amqp.Channel
	runID   string
}

// New returns an unconnected sink.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqpsink: empty url")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("amqpsink: empty exchange")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logger: logger}, nil
}

func (s *Sink) Name() string { return "amqp" }

// Open dials the broker and declares a durable topic exchange.
func (s *Sink) Open(_ context.Context, run *pipeline.Run) error {
	if run != nil {
		s.runID = run.ID
	}

	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		s.cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	s.logger.Info("connected to rabbitmq", "exchange", s.cfg.Exchange, "run_id", s.runID)

	s.conn = conn
	s.channel = ch
	return nil
}

// Insert publishes the item as JSON.
func (s *Sink) Insert(ctx context.Context, item *models.Item) error {
	if s.channel == nil {
		return errors.New("amqpsink: not open")
	}

	key, msg, err := s.message(item)
	if err != nil {
		return err
	}

	err = s.channel.PublishWithContext(ctx, s.cfg.Exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (s *Sink) message(item *models.Item) (string, amqp.Publishing, error) {
	key, err := RoutingKey(item.Kind)
	if err != nil {
		return "", amqp.Publishing{}, err
	}
	body, err := json.Marshal(item)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("marshal item: %w", err)
	}
	return key, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     fmt.Sprintf("%s-%d", item.Kind, item.ID()),
		CorrelationId: s.runID,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}, nil
}

// Close closes the channel and the connection.
func (s *Sink) Close(_ context.Context) error {
	var errs []error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		s.channel = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		s.conn = nil
	}
	return errors.Join(errs...)
}

// RoutingKey maps an item kind to the routing key its messages use.
func RoutingKey(kind models.Kind) (string, error) {
	switch kind {
	case models.KindBook:
		return "books", nil
	case models.KindChapter:
		return "chapters", nil
	default:
		return "", fmt.Errorf("amqpsink: unsupported item kind %s", kind)
	}
}

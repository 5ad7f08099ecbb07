package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// amqpChannel is the part of *amqp.Channel the sink publishes through
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes batches as persistent JSON messages on a direct exchange,
// routed by batch kind
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *logrus.Logger
}

// NewAMQPSink connects and declares the exchange
func NewAMQPSink(amqpURL, exchange string, logger *logrus.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPSink{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

func newAMQPSinkWithChannel(ch amqpChannel, exchange string, logger *logrus.Logger) *AMQPSink {
	return &AMQPSink{channel: ch, exchange: exchange, logger: logger}
}

// Publish sends the batch with routing key = kind
func (s *AMQPSink) Publish(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry batch: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         string(batch.Kind),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return fmt.Errorf("telemetry publisher is closed")
	}
	if err := s.channel.Publish(s.exchange, string(batch.Kind), false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish telemetry batch: %w", err)
	}
	return nil
}

// Close closes the channel and connection
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.channel != nil {
		if channelErr := s.channel.Close(); channelErr != nil {
			s.logger.WithError(channelErr).Warn("Failed to close telemetry channel")
			err = channelErr
		}
		s.channel = nil
	}
	if s.conn != nil {
		if connErr := s.conn.Close(); connErr != nil {
			s.logger.WithError(connErr).Warn("Failed to close telemetry connection")
			if err == nil {
				err = connErr
			}
		}
		s.conn = nil
	}
	return err
}

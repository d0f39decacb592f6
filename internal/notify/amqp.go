package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPPublisher publishes envelopes to a durable topic exchange on RabbitMQ.
type AMQPPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	mu         sync.Mutex
}

func NewAMQPPublisher(url, exchange, routingKey string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening RabbitMQ channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	log.WithFields(log.Fields{
		"exchange":    exchange,
		"routing_key": routingKey,
	}).Info("Connected to RabbitMQ")

	return &AMQPPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, envelope Envelope) bool {
	body, err := json.Marshal(envelope)
	if err != nil {
		log.WithError(err).Error("Failed to marshal notification envelope")
		countPublish("amqp", false)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Publish(
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"exchange":    p.exchange,
			"routing_key": p.routingKey,
		}).Error("Failed to publish notification")
		countPublish("amqp", false)
		return false
	}

	log.WithFields(log.Fields{
		"purchase_id": envelope.Data.PurchaseID,
		"routing_key": p.routingKey,
	}).Info("Published purchase notification")
	countPublish("amqp", true)
	return true
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.WithError(err).Warn("Failed to close RabbitMQ channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

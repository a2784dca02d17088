package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/sentiric/sentiric-missed-call-service/internal/constants"
)

const (
	exchangeName = "sentiric_events"
	queueName    = "sentiric.missed_call_service.events"

	maxRetries = 10
	retryDelay = 5 * time.Second
)

type Publisher struct {
	ch  *amqp091.Channel
	log zerolog.Logger
}

func NewPublisher(ch *amqp091.Channel, log zerolog.Logger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		p.log.Error().Err(err).Msg("Event could not be encoded as JSON.")
		return err
	}

	p.log.Debug().Str("routing_key", routingKey).Bytes("payload", jsonBody).Msg("Publishing event to RabbitMQ...")

	err = p.ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         jsonBody,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		p.log.Error().Err(err).Str("routing_key", routingKey).Msg("Event could not be published to RabbitMQ.")
		return err
	}
	return nil
}

// Connect dials RabbitMQ with retries and declares the events exchange.
func Connect(ctx context.Context, url string, log zerolog.Logger) (*amqp091.Connection, *amqp091.Channel, <-chan *amqp091.Error, error) {
	var conn *amqp091.Connection
	var err error

	config := amqp091.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
	}

	for i := 0; i < maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, nil, nil, ctx.Err()
		default:
		}

		conn, err = amqp091.DialConfig(url, config)
		if err == nil {
			log.Info().Msg("RabbitMQ connection established.")
			ch, chErr := conn.Channel()
			if chErr != nil {
				conn.Close()
				return nil, nil, nil, fmt.Errorf("rabbitmq channel could not be opened: %w", chErr)
			}
			if exErr := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); exErr != nil {
				conn.Close()
				return nil, nil, nil, fmt.Errorf("exchange %s could not be declared: %w", exchangeName, exErr)
			}
			closeChan := make(chan *amqp091.Error, 1)
			conn.NotifyClose(closeChan)
			return conn, ch, closeChan, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxRetries).Msg("RabbitMQ unreachable, retrying in 5 seconds...")

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, nil, nil, ctx.Err()
		}
	}
	return nil, nil, nil, fmt.Errorf("rabbitmq unreachable after %d attempts: %w", maxRetries, err)
}

// StartConsumer delivers call.missed events to handlerFunc until ctx is
// cancelled. Each delivery is handled on its own goroutine tracked by wg;
// the caller must wg.Add(1) for StartConsumer itself before starting it.
func StartConsumer(ctx context.Context, ch *amqp091.Channel, handlerFunc func(context.Context, []byte), log zerolog.Logger, wg *sync.WaitGroup) error {
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue %s could not be declared: %w", queueName, err)
	}

	if err := ch.QueueBind(q.Name, string(constants.EventTypeCallMissed), exchangeName, false, nil); err != nil {
		return fmt.Errorf("queue %s could not be bound to %s: %w", q.Name, exchangeName, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos could not be set: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume on %s failed: %w", q.Name, err)
	}

	log.Info().Str("queue", q.Name).Str("exchange", exchangeName).Msg("Listening for missed-call events...")
	consume(ctx, msgs, handlerFunc, log, wg)
	return nil
}

// consume runs the delivery loop. The caller must hold a wg slot for the
// lifetime of the loop so that wg.Add here never races with wg.Wait.
// Deliveries that arrive after cancellation are requeued untouched.
func consume(ctx context.Context, msgs <-chan amqp091.Delivery, handlerFunc func(context.Context, []byte), log zerolog.Logger, wg *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Consumer loop stopping, no new messages will be taken.")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Info().Msg("RabbitMQ delivery channel closed.")
				return
			}
			if ctx.Err() != nil {
				_ = d.Nack(false, true)
				log.Info().Msg("Consumer loop stopping, delivery requeued.")
				return
			}
			wg.Add(1)
			go func(msg amqp091.Delivery) {
				defer wg.Done()
				handlerFunc(ctx, msg.Body)
				_ = msg.Ack(false)
			}(d)
		}
	}
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// HandlerFunc processes one bus message. Returning an error drives the
// retry-then-DLQ state machine in spec.md §4.4; returning nil is an ack.
type HandlerFunc func(ctx context.Context, msg Message) error

// RetryPolicy configures the retry-scheduled state (spec.md §4.4:
// "delay(base x 2^retryCount)", max attempts before dead-lettering).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Consumer reads one durable queue: a Kafka consumer group bound to an
// exchange's topic, filtering to the routing-key patterns it declares and
// ignoring everything else (grounded on matcher/internal/kafka/signal_consumer.go's
// reader-loop shape, generalized from one implicit binding to a pattern set).
type Consumer struct {
	Queue    string
	Exchange string
	Bindings []Binding
	Handler  HandlerFunc
	Retry    RetryPolicy

	reader    *kafka.Reader
	publisher *Publisher
}

// NewConsumer builds a consumer for one queue. namespace applies the
// environment prefix to both the exchange topic and the queue's group ID
// (spec.md §6: "every exchange and queue name is prefixed with
// {environment}_" in non-production environments).
func NewConsumer(brokers []string, namespace func(string) string, queue, exchange string, bindings []Binding, handler HandlerFunc, retry RetryPolicy, publisher *Publisher) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: namespace(queue),
		Topic:   namespace(exchange),
	})
	return &Consumer{
		Queue:     queue,
		Exchange:  exchange,
		Bindings:  bindings,
		Handler:   handler,
		Retry:     retry,
		reader:    reader,
		publisher: publisher,
	}
}

// Run reads until ctx is canceled. It is meant to run under a
// routine.Manager task (spec.md §9 "manual reconnect loops -> supervisor");
// a read/handle error is returned so the supervising task's reconnect loop
// can restart it with backoff.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		kmsg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("bus consume %s: %w", c.Queue, err)
		}

		msg := decodeMessage(c.Exchange, kmsg)

		if !c.boundTo(msg.RoutingKey) {
			continue
		}

		if err := c.dispatch(ctx, msg); err != nil {
			return fmt.Errorf("bus dispatch %s: %w", c.Queue, err)
		}
	}
}

func (c *Consumer) boundTo(routingKey string) bool {
	for _, b := range c.Bindings {
		if b.Matches(routingKey) {
			return true
		}
	}
	return false
}

// dispatch runs the handler and, on failure, either schedules a backoff
// retry (republish to the same exchange/routing key with retryCount+1) or
// dead-letters the message once Retry.MaxAttempts is exhausted (spec.md
// §4.4 state machine).
func (c *Consumer) dispatch(ctx context.Context, msg Message) error {
	handlerErr := c.Handler(ctx, msg)
	if handlerErr == nil {
		return nil
	}

	if msg.RetryCount+1 >= c.Retry.MaxAttempts {
		return c.deadLetter(ctx, msg, handlerErr)
	}

	delay := retryDelay(c.Retry.BaseDelay, msg.RetryCount)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	retryMsg := msg
	retryMsg.RetryCount++
	if c.publisher == nil {
		return fmt.Errorf("retry %s/%s: no publisher configured", msg.Exchange, msg.RoutingKey)
	}
	return c.publisher.Publish(ctx, retryMsg)
}

func (c *Consumer) deadLetter(ctx context.Context, msg Message, cause error) error {
	if c.publisher == nil {
		return fmt.Errorf("dead-letter %s/%s: no publisher configured: %w", msg.Exchange, msg.RoutingKey, cause)
	}
	dlq := Message{
		Exchange:   ExchangeDeadLetter,
		RoutingKey: RoutingDeadLetter,
		Body:       msg.Body,
		RetryCount: msg.RetryCount + 1,
	}
	return c.publisher.Publish(ctx, dlq)
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeMessage(exchange string, kmsg kafka.Message) Message {
	msg := Message{Exchange: exchange, Body: kmsg.Value}
	for _, h := range kmsg.Headers {
		switch h.Key {
		case headerRoutingKey:
			msg.RoutingKey = string(h.Value)
		case headerRetryCount:
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				msg.RetryCount = n
			}
		case headerCorrelationID:
			msg.CorrelationID = string(h.Value)
		case headerReplyTo:
			msg.ReplyTo = string(h.Value)
		}
	}
	return msg
}

package bus

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Publisher multiplexes published messages across the four exchanges,
// holding one kafka.Writer per exchange topic, built exactly as the
// teacher's SignalPublisher does (ingestion/internal/kafka/signal.go):
// RequireAll acks, hash-balanced partitioning, auto topic creation.
type Publisher struct {
	brokers []string
	ns      func(string) string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewPublisher(brokers []string, namespace func(string) string) *Publisher {
	return &Publisher{
		brokers: brokers,
		ns:      namespace,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *Publisher) writerFor(exchange string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	topic := p.ns(exchange)
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = w
	return w
}

// Publish writes msg to its exchange, carrying routing key, retry count,
// and RPC correlation metadata as Kafka message headers.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	headers := []kafka.Header{
		{Key: headerRoutingKey, Value: []byte(msg.RoutingKey)},
		{Key: headerRetryCount, Value: []byte(strconv.Itoa(msg.RetryCount))},
	}
	if msg.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: headerCorrelationID, Value: []byte(msg.CorrelationID)})
	}
	if msg.ReplyTo != "" {
		headers = append(headers, kafka.Header{Key: headerReplyTo, Value: []byte(msg.ReplyTo)})
	}

	kmsg := kafka.Message{
		Key:     []byte(msg.RoutingKey),
		Value:   msg.Body,
		Headers: headers,
	}

	if err := p.writerFor(msg.Exchange).WriteMessages(ctx, kmsg); err != nil {
		return fmt.Errorf("bus publish %s/%s: %w", msg.Exchange, msg.RoutingKey, err)
	}
	return nil
}

// Close closes every writer opened by this publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

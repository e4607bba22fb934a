package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var producerTracer = otel.Tracer("messaging/producer")

// Producer publishes JSON events to a single topic, carrying the caller's
// trace context in the message headers.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

type ProducerOption func(*kafka.Writer)

// WithAsync makes Publish return before the broker acknowledges the write.
func WithAsync() ProducerOption {
	return func(w *kafka.Writer) {
		w.Async = true
	}
}

func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(w *kafka.Writer) {
		w.BatchTimeout = d
	}
}

func NewProducer(brokers []string, topic string, opts ...ProducerOption) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return &Producer{writer: writer, topic: topic}
}

// Publish writes event under key. Events with the same key land on the same
// partition, so a checkout's or an order's events stay ordered.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	msg, err := newMessage(key, event)
	if err != nil {
		return err
	}

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
			semconv.MessagingMessageBodySize(len(msg.Value)),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, NewMessageCarrier(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write message to %s: %w", p.topic, err)
	}

	return nil
}

func (p *Producer) Topic() string {
	return p.topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func newMessage(key string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
	}, nil
}

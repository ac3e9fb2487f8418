// Package kafka publishes kyc.ActivityEvent records to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/goliatone/go-kyc"
	"github.com/goliatone/go-kyc/activitymap"
)

// DefaultTopic receives activity events when Config.Topic is empty.
const DefaultTopic = "kyc.activity"

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka writer built by NewWriter.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewWriter builds a synchronous writer keyed by user id so events for one
// user land on one partition in order.
func NewWriter(cfg Config) (*kafkago.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	return &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// ActivitySink implements kyc.ActivitySink over a MessageWriter.
type ActivitySink struct {
	writer    MessageWriter
	timeout   time.Duration
	normalize []activitymap.Option
}

var _ kyc.ActivitySink = (*ActivitySink)(nil)

// SinkOption customizes an ActivitySink.
type SinkOption func(*ActivitySink)

// WithPublishTimeout bounds each publish so a slow broker never stalls the
// request that produced the event.
func WithPublishTimeout(timeout time.Duration) SinkOption {
	return func(s *ActivitySink) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithNormalizeOptions customizes the published record shape.
func WithNormalizeOptions(opts ...activitymap.Option) SinkOption {
	return func(s *ActivitySink) {
		s.normalize = append(s.normalize, opts...)
	}
}

func NewActivitySink(writer MessageWriter, opts ...SinkOption) *ActivitySink {
	s := &ActivitySink{
		writer:  writer,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Record publishes the normalized event as JSON. The message key is the user
// id, or the session id when the user is unknown.
func (s *ActivitySink) Record(ctx context.Context, event kyc.ActivityEvent) error {
	value, err := json.Marshal(activitymap.Normalize(event, s.normalize...))
	if err != nil {
		return err
	}

	key := event.UserID
	if key == "" {
		key = event.SessionID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
}

// Close closes the underlying writer.
func (s *ActivitySink) Close() error {
	return s.writer.Close()
}

package mq

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	appErr "neurojudge/pkg/errors"
	"neurojudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reserved record headers; everything else maps to Message.Headers.
const (
	headerID       = "nj-id"
	headerTime     = "nj-time"
	headerAttempts = "nj-attempts"
)

const fetchBackoff = 200 * time.Millisecond

// KafkaConfig is shared by the evaluator and the cli.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.ClientID == "" {
		c.ClientID = "neurojudge"
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 1 << 20
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// KafkaQueue publishes with one shared writer and opens a reader per Consume call.
type KafkaQueue struct {
	cfg    KafkaConfig
	dialer *kafka.Dialer
	writer *kafka.Writer
}

func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, appErr.ConfigError("kafka.brokers", "at least one broker is required")
	}
	cfg = cfg.withDefaults()
	dialer := &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout, DualStack: true}

	return &KafkaQueue{
		cfg:    cfg,
		dialer: dialer,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			// Events are rare; flush each one.
			BatchSize:    1,
			BatchTimeout: cfg.BatchTimeout,
			Transport: &kafka.Transport{
				ClientID: cfg.ClientID,
				Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.DialContext(ctx, network, addr)
				},
			},
		},
	}, nil
}

func (q *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if topic == "" || message == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("publish needs a topic and a message")
	}
	return q.writer.WriteMessages(ctx, encode(topic, message))
}

// Consume blocks until ctx is cancelled. Messages are handled one at a time
// so requeue requests apply in the order they were made. The offset is
// committed after success, a permanent failure or dead-lettering.
func (q *KafkaQueue) Consume(ctx context.Context, topic string, handler HandlerFunc, opts SubscribeOptions) error {
	if topic == "" || handler == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("consume needs a topic and a handler")
	}
	opts = opts.withDefaults(topic)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     q.cfg.Brokers,
		Topic:       topic,
		GroupID:     opts.ConsumerGroup,
		MaxBytes:    q.cfg.MaxBytes,
		MaxWait:     q.cfg.MaxWait,
		StartOffset: kafka.LastOffset,
		Dialer:      q.dialer,
	})
	defer reader.Close()

	for {
		rec, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn(ctx, "kafka fetch failed", zap.String("topic", topic), zap.Error(err))
			if !sleepCtx(ctx, fetchBackoff) {
				return nil
			}
			continue
		}
		q.deliver(ctx, topic, decode(rec), handler, opts)
		if err := reader.CommitMessages(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn(ctx, "kafka commit failed", zap.String("topic", topic), zap.Int64("offset", rec.Offset), zap.Error(err))
		}
	}
}

func (q *KafkaQueue) deliver(ctx context.Context, topic string, msg *Message, handler HandlerFunc, opts SubscribeOptions) {
	for {
		err := handler(ctx, msg)
		if err == nil {
			return
		}
		msg.Attempts++
		fields := []zap.Field{
			zap.String("topic", topic),
			zap.String("message_id", msg.ID),
			zap.Int("attempts", msg.Attempts),
			zap.Error(err),
		}
		if !retryable(err) {
			logger.Warn(ctx, "message rejected", fields...)
			return
		}
		if msg.Attempts > opts.MaxRetries || !sleepCtx(ctx, opts.RetryDelay) {
			q.deadLetter(ctx, msg, opts.DeadLetterTopic, fields)
			return
		}
	}
}

func (q *KafkaQueue) deadLetter(ctx context.Context, msg *Message, topic string, fields []zap.Field) {
	if topic == "" {
		logger.Error(ctx, "message dropped after retries", fields...)
		return
	}
	if err := q.Publish(context.WithoutCancel(ctx), topic, msg); err != nil {
		logger.Error(ctx, "dead-letter publish failed", append(fields, zap.NamedError("publish_error", err))...)
		return
	}
	logger.Warn(ctx, "message dead-lettered", append(fields, zap.String("dead_letter_topic", topic))...)
}

func (q *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := q.dialer.DialContext(ctx, "tcp", q.cfg.Brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// retryable is false for errors that would fail the same way again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return appErr.GetCode(err).HTTPStatus() >= http.StatusInternalServerError
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func encode(topic string, m *Message) kafka.Message {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	headers := make([]kafka.Header, 0, len(m.Headers)+3)
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: headerTime, Value: []byte(ts.Format(time.RFC3339Nano))})
	if m.ID != "" {
		headers = append(headers, kafka.Header{Key: headerID, Value: []byte(m.ID)})
	}
	if m.Attempts > 0 {
		headers = append(headers, kafka.Header{Key: headerAttempts, Value: []byte(strconv.Itoa(m.Attempts))})
	}
	return kafka.Message{Topic: topic, Key: []byte(m.ID), Value: m.Body, Headers: headers, Time: ts}
}

func decode(rec kafka.Message) *Message {
	m := &Message{
		ID:        string(rec.Key),
		Body:      rec.Value,
		Headers:   map[string]string{},
		Timestamp: rec.Time,
	}
	for _, h := range rec.Headers {
		v := string(h.Value)
		switch h.Key {
		case headerID:
			m.ID = v
		case headerTime:
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.Timestamp = ts
			}
		case headerAttempts:
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				m.Attempts = n
			}
		default:
			m.Headers[h.Key] = v
		}
	}
	return m
}

var (
	_ Producer = (*KafkaQueue)(nil)
	_ Consumer = (*KafkaQueue)(nil)
)

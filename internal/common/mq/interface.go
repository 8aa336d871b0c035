package mq

import (
	"context"
	"time"
)

// Producer publishes lifecycle events and requeue requests.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Consumer delivers messages of one topic to handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc, opts SubscribeOptions) error
}

// HandlerFunc handles one message. Errors whose code maps to a 4xx status
// are not retried.
type HandlerFunc func(ctx context.Context, message *Message) error

type SubscribeOptions struct {
	ConsumerGroup string
	// MaxRetries counts redeliveries after the first attempt.
	MaxRetries int
	RetryDelay time.Duration
	// DeadLetterTopic receives messages that exhausted their retries. Empty drops them.
	DeadLetterTopic string
}

func (o SubscribeOptions) withDefaults(topic string) SubscribeOptions {
	if o.ConsumerGroup == "" {
		o.ConsumerGroup = "neurojudge-" + topic
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// Package kafka carries computation events between the docstats service and
// the analytics service over segmentio/kafka-go. Events travel as JSON with
// their type in a record header.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/resilience"
)

// Message is the consumer-side view of a record.
type Message struct {
	Key   []byte
	Type  string
	Value []byte
	Time  time.Time
}

// MessageHandler processes one record. Errors are retried a few times before
// the record is given up on.
type MessageHandler func(ctx context.Context, msg Message) error

// reader is the part of *kafka.Reader the consume loop uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// ConsumerStats summarises a Consumer for health reporting.
type ConsumerStats struct {
	Messages    int64 `json:"messages"`
	Errors      int64 `json:"fetch_errors"`
	Handled     int64 `json:"handled"`
	GivenUp     int64 `json:"given_up"`
	Lag         int64 `json:"lag"`
	LastMessage time.Time
}

// Consumer reads a topic as part of a consumer group and commits each record
// once its handler has run.
type Consumer struct {
	reader  reader
	handler MessageHandler
	retry   resilience.Backoff
	logger  *slog.Logger

	handled atomic.Int64
	givenUp atomic.Int64
	last    atomic.Int64
}

// NewConsumer joins cfg.ConsumerGroup on topic.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       4 << 20,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   resilience.Backoff{Attempts: 3, Base: 50 * time.Millisecond, Max: time.Second},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is done. Fetch errors back off instead of
// spinning; a record whose handler keeps failing is logged and committed so
// the partition keeps moving.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			failures++
			delay := c.retry.Delay(failures)
			c.logger.Warn("fetch failed", "error", err, "next_attempt_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		failures = 0
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, raw kafka.Message) {
	msg := fromKafka(raw)
	err := resilience.Retry(ctx, "handle "+msg.Type, c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.givenUp.Add(1)
		c.logger.Error("giving up on message", "partition", raw.Partition, "offset", raw.Offset, "error", err)
	} else {
		c.handled.Add(1)
	}
	c.last.Store(raw.Time.UnixNano())
	if err := c.reader.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
		c.logger.Error("commit failed", "partition", raw.Partition, "offset", raw.Offset, "error", err)
	}
}

// Stats merges the reader's counters with the consumer's own.
func (c *Consumer) Stats() ConsumerStats {
	rs := c.reader.Stats()
	s := ConsumerStats{
		Messages: rs.Messages,
		Errors:   rs.Errors,
		Handled:  c.handled.Load(),
		GivenUp:  c.givenUp.Load(),
		Lag:      rs.Lag,
	}
	if ns := c.last.Load(); ns != 0 {
		s.LastMessage = time.Unix(0, ns)
	}
	return s
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func fromKafka(msg kafka.Message) Message {
	m := Message{Key: msg.Key, Value: msg.Value, Time: msg.Time}
	for _, h := range msg.Headers {
		if h.Key == TypeHeader {
			m.Type = string(h.Value)
		}
	}
	return m
}

// DecodeJSON unmarshals a record value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}

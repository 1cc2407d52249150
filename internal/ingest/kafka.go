package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sensor-anomaly/internal/config"
	"sensor-anomaly/internal/models"
)

// Sink receives decoded readings. Enqueue reports false when the reading
// could not be accepted.
type Sink interface {
	Enqueue(r models.Reading, source string) bool
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds readings published on a Kafka topic into a Sink.
type Consumer struct {
	reader  messageReader
	sink    Sink
	log     *zap.Logger
	backoff time.Duration
}

func NewConsumer(cfg config.KafkaConfig, sink Sink, log *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newConsumer(reader, sink, log.With(zap.String("component", "kafka-consumer"), zap.String("topic", cfg.Topic)))
}

func newConsumer(reader messageReader, sink Sink, log *zap.Logger) *Consumer {
	return &Consumer{reader: reader, sink: sink, log: log, backoff: time.Second}
}

// Run consumes until ctx is cancelled. Undecodable messages are logged and
// committed so they do not block the partition. A message is committed only
// after the sink accepted all of its readings.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer_start")
	defer c.log.Info("consumer_stop")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("fetch_error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		if !c.handle(ctx, m) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("commit_error", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handle delivers every reading of m to the sink, retrying refused readings
// after the backoff. It returns false when ctx ends first; the message is then
// left uncommitted for redelivery.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	readings, err := DecodeReadings(m.Value)
	if err != nil {
		c.log.Warn("invalid_json", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}
	for _, r := range readings {
		for !c.sink.Enqueue(r, "kafka") {
			c.log.Warn("queue_full", zap.String("entity_id", r.EntityID), zap.Int64("offset", m.Offset))
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.backoff):
			}
		}
	}
	return true
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig describes one subscription. With an empty GroupID the
// reader is bound to partition 0 of Topic and offsets are not committed to a group.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset applies to a group without committed offsets: kafka.FirstOffset or kafka.LastOffset.
	StartOffset int64
	MaxWait     time.Duration
}

type Consumer struct {
	r     messageReader
	topic string
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return NewConsumerWithConfig(ConsumerConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

func NewConsumerWithConfig(cc ConsumerConfig) *Consumer {
	if cc.StartOffset == 0 {
		// прогрев нужен только для свежих заявок
		cc.StartOffset = kafka.LastOffset
	}
	if cc.MaxWait <= 0 {
		cc.MaxWait = time.Second
	}
	cfg := kafka.ReaderConfig{
		Brokers:           cc.Brokers,
		GroupID:           cc.GroupID,
		StartOffset:       cc.StartOffset,
		MaxWait:           cc.MaxWait,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if cc.GroupID != "" {
		cfg.GroupTopics = []string{cc.Topic}
	} else {
		cfg.Topic = cc.Topic
	}
	return &Consumer{r: kafka.NewReader(cfg), topic: cc.Topic}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Topic() string { return c.topic }

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume feeds messages to handler until ctx is done or a call fails.
// A message is committed only after handler succeeds, so a failed message is
// redelivered after restart. Cancellation is reported as ctx.Err().
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}
		slog.Debug("kafka message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))

		if err := handler(msg.Key, msg.Value); err != nil {
			return errors.Wrapf(err, "handle message at offset %d", msg.Offset)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

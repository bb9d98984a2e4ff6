package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
)

const (
	DefaultKafkaBatchSize  = 100
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	// TopicPrefix is prepended to the dataset name to form the topic.
	TopicPrefix      string `json:"topic_prefix" yaml:"topic_prefix" toml:"topic_prefix"`
	BatchSize        int    `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	AutoCreateTopics bool   `json:"auto_create_topics" yaml:"auto_create_topics" toml:"auto_create_topics"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per event to a topic per dataset, keyed by
// the row key so that a row always lands on the same partition. Deletes are
// tombstones.
type KafkaSink struct {
	writer      messageWriter
	topicPrefix string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultKafkaBatchSize
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchBytes:             DefaultKafkaBatchBytes,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}
	return newKafkaSink(writer, cfg.TopicPrefix), nil
}

func newKafkaSink(w messageWriter, topicPrefix string) *KafkaSink {
	return &KafkaSink{writer: w, topicPrefix: topicPrefix}
}

func (k *KafkaSink) Init(ctx context.Context) error {
	return nil
}

func (k *KafkaSink) Write(ctx context.Context, events []*keyvalue.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg := kafka.Message{
			Topic: k.topicPrefix + e.Dataset,
			Key:   []byte(e.Key),
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(e.Kind)},
				{Key: "xid", Value: []byte(strconv.FormatUint(uint64(e.Xid), 10))},
			},
		}
		if !e.IsDelete() {
			msg.Value = e.ValueBytes()
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d events to kafka: %w", len(msgs), err)
	}
	return nil
}

func (k *KafkaSink) Flush(ctx context.Context) error {
	return nil
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func (k *KafkaSink) Type() string {
	return "kafka"
}

var _ Sink = (*KafkaSink)(nil)

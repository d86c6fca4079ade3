// Package events carries activities over Kafka so feed fan-out can run
// outside the request that produced them.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/pkg/logger"
)

// TopicActivity is the topic activities are published to.
const TopicActivity = "graph_activity"

// Producer is a feed.Publisher that queues activities on Kafka instead of
// writing feeds directly.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   logger.Logger
}

var _ feed.Publisher = (*Producer)(nil)

// NewProducer creates a Producer over an existing sync producer. An empty
// topic selects TopicActivity.
func NewProducer(p sarama.SyncProducer, topic string, l logger.Logger) *Producer {
	if topic == "" {
		topic = TopicActivity
	}
	return &Producer{producer: p, topic: topic, logger: logger.OrNop(l)}
}

// NewProducerFromClient creates a Producer with a sync producer built from client.
func NewProducerFromClient(client sarama.Client, topic string, l logger.Logger) (*Producer, error) {
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducer(p, topic, l), nil
}

// Publish validates a and sends it keyed by actor, so one actor's activities
// stay ordered within a partition. The returned report only says the
// activity was queued.
func (p *Producer) Publish(ctx context.Context, a feed.Activity) (feed.Report, error) {
	if err := a.Validate(); err != nil {
		return feed.Report{}, err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return feed.Report{}, fmt.Errorf("encode activity: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", a.ActorID)),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return feed.Report{ActivityID: a.ID}, fmt.Errorf("send activity %s: %w", a.ID, err)
	}

	p.logger.Debug("activity queued",
		logger.String("activity", a.ID),
		logger.String("topic", p.topic),
		logger.Int32("partition", partition),
		logger.Int64("offset", offset))
	return feed.Report{ActivityID: a.ID, Queued: true}, nil
}

// Close closes the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}

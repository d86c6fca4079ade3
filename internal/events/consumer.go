package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/pkg/logger"
)

const (
	defaultRetries       = 3
	defaultBackoff       = 200 * time.Millisecond
	defaultHandleTimeout = 5 * time.Second
	defaultConsumerGroup = "graph_activity_fanout"
)

// Handler is a sarama.ConsumerGroupHandler that fans queued activities out
// with a feed.Publisher, normally a *feed.FanOut.
type Handler struct {
	publisher feed.Publisher
	logger    logger.Logger
	retries   int
	backoff   time.Duration
	timeout   time.Duration
}

var _ sarama.ConsumerGroupHandler = (*Handler)(nil)

// NewHandler creates a Handler.
func NewHandler(publisher feed.Publisher, l logger.Logger) *Handler {
	return &Handler{
		publisher: publisher,
		logger:    logger.OrNop(l),
		retries:   defaultRetries,
		backoff:   defaultBackoff,
		timeout:   defaultHandleTimeout,
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (h *Handler) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim handles every message of the claim. Messages that cannot be
// decoded or that keep failing are logged and skipped. A message whose
// retries were cut short by the end of the session stays unmarked so the
// next owner of the partition handles it again.
func (h *Handler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.Handle(session.Context(), msg); err != nil {
			if session.Context().Err() != nil {
				return nil
			}
			h.logger.Error("dropping activity message",
				logger.String("topic", msg.Topic),
				logger.Int32("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
				logger.Error(err))
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Handle decodes one message and publishes it, retrying transient failures
// with an exponential backoff. Retrying stops early when ctx is done.
func (h *Handler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var a feed.Activity
	if err := json.Unmarshal(msg.Value, &a); err != nil {
		return fmt.Errorf("decode activity: %w", err)
	}

	var err error
	delay := h.backoff
	for attempt := 1; attempt <= h.retries; attempt++ {
		err = h.publish(ctx, a)
		if !retryable(err) {
			return err
		}
		h.logger.Warn("activity fan-out failed",
			logger.String("activity", a.ID),
			logger.Int("attempt", attempt),
			logger.Error(err))
		if attempt == h.retries {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}

// retryable reports whether publishing again can help. A fan-out that reached
// some targets is final since those targets would get the activity twice.
func retryable(err error) bool {
	if err == nil || errors.Is(err, feed.ErrInvalidActivity) {
		return false
	}
	var partial *feed.PartialFailureError
	if errors.As(err, &partial) {
		return partial.Delivered == 0
	}
	return true
}

func (h *Handler) publish(ctx context.Context, a feed.Activity) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	_, err := h.publisher.Publish(ctx, a)
	return err
}

// Consumer runs a consumer group over the activity topic until its context ends.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *Handler
	logger  logger.Logger
}

// NewConsumer creates a Consumer joining groupID. Empty values select the
// default group and TopicActivity.
func NewConsumer(client sarama.Client, groupID, topic string, handler *Handler, l logger.Logger) (*Consumer, error) {
	if groupID == "" {
		groupID = defaultConsumerGroup
	}
	if topic == "" {
		topic = TopicActivity
	}
	group, err := sarama.NewConsumerGroupFromClient(groupID, client)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Consumer{group: group, topic: topic, handler: handler, logger: logger.OrNop(l)}, nil
}

// Run consumes until ctx is done. Consume returns on every rebalance, so it
// is called in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("consumer group stopped", logger.Error(err))
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

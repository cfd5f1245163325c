package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CampaignBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ActivityHandler reacts to one decoded campaign activity message.
type ActivityHandler func(ctx context.Context, a messages.CampaignActivity) error

// Consumer reads the campaign activity topic. Every message is committed
// once it has been handled or given up on, so a bad payload or a handler
// that keeps failing never stalls the group.
type Consumer struct {
	r          messageReader
	attempts   int
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg))
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r, attempts: 3, retryDelay: 500 * time.Millisecond}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// ConsumeActivity runs until ctx is done, returning ctx.Err() then. Any
// other error comes from the reader itself.
func (c *Consumer) ConsumeActivity(ctx context.Context, handle ActivityHandler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}

		var a messages.CampaignActivity
		if err := json.Unmarshal(msg.Value, &a); err != nil || a.CampaignID == 0 {
			slog.Warn("skip malformed activity message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"payload", string(msg.Value),
			)
		} else if err := c.handle(ctx, handle, a); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("activity message dropped",
				"campaign_id", a.CampaignID,
				"kind", a.Kind,
				"offset", msg.Offset,
				"error", err.Error(),
			)
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handle ActivityHandler, a messages.CampaignActivity) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		if err = handle(ctx, a); err == nil {
			return nil
		}
	}
	return err
}

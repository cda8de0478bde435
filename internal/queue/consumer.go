package queue

import (
	"context"
	"encoding/json"

	"reverse_auction/internal/auction"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Consumer 消费 Kafka 事件并写入 auction_logs。
type Consumer struct {
	r      *kafka.Reader
	logs   LogAppender
	logger zerolog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logs LogAppender, logger zerolog.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		logs:   logs,
		logger: logger,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		if err := c.handle(ctx, m.Value); err != nil {
			c.logger.Error().Err(err).Int64("offset", m.Offset).Msg("consume auction event")
		}
	}
}

// handle 幂等：重复消息由 event_id 唯一索引吸收。
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var ev auction.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	if err := ValidateEvent(ev); err != nil {
		return err
	}
	return c.logs.Append(ctx, ev.ToLog())
}

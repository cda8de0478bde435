package queue

import (
	"context"
	"encoding/json"
	"time"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/metrics"

	"github.com/segmentio/kafka-go"
)

// Producer 封装 Kafka 写入器。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者：
// - Hash + auction_id 作为 key: 同一拍卖的事件落到同一分区，保持先后顺序。
// - RequireAll: 等待 ISR 副本确认。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步写入一条生命周期事件。
func (p *Producer) Publish(ctx context.Context, ev auction.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AuctionID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "action", Value: []byte(ev.Action)},
		},
	})
	metrics.EventsPublished.WithLabelValues("kafka", resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

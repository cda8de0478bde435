package queue

import (
	"context"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/metrics"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把事件 XADD 到 Redis Stream，由 Relay 异步转发 Kafka。
// 引擎只等一次本地 Redis 写入，不被 Kafka 抖动拖慢。
type Outbox struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream, maxLen: 100000}
}

func (o *Outbox) Publish(ctx context.Context, ev auction.Event) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}
	err := o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: streamValues(ev),
	}).Err()
	metrics.EventsPublished.WithLabelValues("outbox", resultLabel(err)).Inc()
	return err
}

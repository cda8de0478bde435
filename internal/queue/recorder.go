package queue

import (
	"context"

	"reverse_auction/internal/auction"
	"reverse_auction/internal/metrics"
	"reverse_auction/internal/model"
)

// LogAppender 是 auction_logs 的写入端。
type LogAppender interface {
	Append(ctx context.Context, entry *model.AuctionLog) error
}

// Recorder 未配置 Kafka 时直接把事件写进审计表。
type Recorder struct {
	logs LogAppender
}

func NewRecorder(logs LogAppender) *Recorder {
	return &Recorder{logs: logs}
}

func (r *Recorder) Publish(ctx context.Context, ev auction.Event) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}
	err := r.logs.Append(ctx, ev.ToLog())
	metrics.EventsPublished.WithLabelValues("db", resultLabel(err)).Inc()
	return err
}

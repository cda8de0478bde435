package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reverse_auction/internal/auction"

	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Relay 将 Redis Stream 事件异步转发到下游（Kafka）。
// 语义：下游写入成功后才 ACK Stream，失败则保留消息等待重试。
type Relay struct {
	rdb    *rd.Client
	sink   auction.Publisher
	logger zerolog.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, sink auction.Publisher, stream, group, consumer string, logger zerolog.Logger) *Relay {
	return &Relay{
		rdb:      rdb,
		sink:     sink,
		logger:   logger,
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.logger.Error().Err(err).Msg("relay ensure group")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.drain(ctx, 2*time.Second); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Warn().Err(err).Msg("relay iteration failed")
			time.Sleep(300 * time.Millisecond)
		}
	}
}

// drain 先处理本消费者的历史 pending，再读新消息；返回成功转发的条数。
func (r *Relay) drain(ctx context.Context, block time.Duration) (int, error) {
	msgs, err := r.readGroup(ctx, "0", 0)
	if err != nil {
		return 0, fmt.Errorf("read pending: %w", err)
	}
	if len(msgs) == 0 {
		msgs, err = r.readGroup(ctx, ">", block)
		if err != nil {
			return 0, fmt.Errorf("read new: %w", err)
		}
	}

	done := 0
	for _, xm := range msgs {
		if err := r.processOne(ctx, xm); err != nil {
			// 发布失败不 ACK，消息会继续保留用于重试。
			return done, fmt.Errorf("process message id=%s: %w", xm.ID, err)
		}
		done++
	}
	return done, nil
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	if block <= 0 {
		block = -1 // 不带 BLOCK 参数
	}
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	ev, err := parseAuctionEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.logger.Warn().Err(err).Str("id", xm.ID).Msg("relay dropping malformed event")
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.sink.Publish(pubCtx, ev); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

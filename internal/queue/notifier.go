package queue

import (
	"context"

	"food_rescue/internal/model"

	rd "github.com/redis/go-redis/v9"
)

// StreamNotifier 把提交后的状态变更事件写入 Redis Stream（outbox），
// 由 Relay 异步转发到 Kafka。实现 ledger.Notifier。
type StreamNotifier struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewStreamNotifier(rdb *rd.Client, stream string, maxLen int64) *StreamNotifier {
	return &StreamNotifier{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (n *StreamNotifier) Notify(ctx context.Context, evt model.StatusChangeEvent) error {
	return n.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: n.maxLen > 0,
		Values: streamValues(evt),
	}).Err()
}

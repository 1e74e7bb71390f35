package redis

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// RequestPending 表示请求已占用幂等键，正在处理。
	RequestPending = "pending"
	// RequestSuccess 表示预约已创建。
	RequestSuccess = "success"
	// RequestFailed 表示请求被拒绝（终态，幂等键已释放）。
	RequestFailed = "failed"
)

// RequestState 对应 Redis 内的 request 状态结构。
type RequestState struct {
	RequestID     string
	Status        string
	ReservationID uint
	Reason        string
}

// GetRequestState 查询 request_id 当前状态。found=false 表示 key 不存在。
func GetRequestState(ctx context.Context, rdb *rd.Client, requestID string) (RequestState, bool, error) {
	m, err := rdb.HGetAll(ctx, RequestStatusKey(requestID)).Result()
	if err != nil {
		return RequestState{}, false, err
	}
	if len(m) == 0 {
		return RequestState{}, false, nil
	}

	out := RequestState{
		RequestID: requestID,
		Status:    m["status"],
		Reason:    m["reason"],
	}
	if out.Status == "" {
		out.Status = RequestPending
	}
	if v := m["reservation_id"]; v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return RequestState{}, false, err
		}
		out.ReservationID = uint(id)
	}
	return out, true, nil
}

// PutRequestState 更新 request 状态，并刷新 key TTL。
func PutRequestState(ctx context.Context, rdb *rd.Client, st RequestState, ttl time.Duration) error {
	key := RequestStatusKey(st.RequestID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"request_id", st.RequestID,
		"status", st.Status,
		"reservation_id", strconv.FormatUint(uint64(st.ReservationID), 10),
		"reason", st.Reason,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

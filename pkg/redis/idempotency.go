package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaReleaseClaimIfMatch 仅当键值仍是自己的 request_id 时才删除，避免误删后来者的占用。
const luaReleaseClaimIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// ClaimRequest 尝试用 requestID 占用 (recipient, idemKey)。
// 已被占用时 claimed=false，owner 为先到请求的 request_id。
func ClaimRequest(ctx context.Context, rdb *rd.Client, recipientID uint, idemKey, requestID string, ttl time.Duration) (owner string, claimed bool, err error) {
	key := IdempotencyKey(recipientID, idemKey)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := rdb.SetNX(ctx, key, requestID, ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return requestID, true, nil
		}
		owner, err := rdb.Get(ctx, key).Result()
		if errors.Is(err, rd.Nil) {
			// 占用者刚好释放，重试一次
			continue
		}
		if err != nil {
			return "", false, err
		}
		return owner, false, nil
	}
	return "", false, fmt.Errorf("idempotency key %q changed hands while claiming", idemKey)
}

// ReleaseClaimIfMatch 释放占用，让客户端可以用同一个 key 重试。
func ReleaseClaimIfMatch(ctx context.Context, rdb *rd.Client, recipientID uint, idemKey, requestID string) error {
	_, err := rdb.Eval(ctx, luaReleaseClaimIfMatch, []string{IdempotencyKey(recipientID, idemKey)}, requestID).Int()
	return err
}

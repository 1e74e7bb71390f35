package redis

import "fmt"

// RateLimitKey 限流窗口键，scope 区分接口，subject 为 user:<id> 或 ip:<addr>。
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("food_rescue:rate_limit:%s:%s", scope, subject)
}

// IdempotencyKey 将客户端 Idempotency-Key 映射到首次占用它的 request_id。
func IdempotencyKey(recipientID uint, idemKey string) string {
	return fmt.Sprintf("food_rescue:idem:%d:%s", recipientID, idemKey)
}

// RequestStatusKey 存储 request_id 的处理状态（pending/success/failed）。
func RequestStatusKey(requestID string) string {
	return fmt.Sprintf("food_rescue:request:status:%s", requestID)
}

package redis

import "fmt"

// StepClaimKey 标记某次拍卖（runID）的第 step 步是否已触发。
func StepClaimKey(runID string, step int64) string {
	return fmt.Sprintf("reverse_auction:step:%s:%d", runID, step)
}

// TickLockKey 多副本部署时保证同一时刻只有一个 tick 在执行。
func TickLockKey() string {
	return "reverse_auction:tick:lock"
}

// EventOutboxKey 生命周期事件的 Redis Stream 出站队列。
func EventOutboxKey(stream string) string {
	if stream == "" {
		return "reverse_auction:events"
	}
	return stream
}

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultOrderLockTTL = 30 * time.Second

// releaseScript 仅当持有者 token 匹配时删除锁，避免误删他人续期后的锁。
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// OrderLock 单据级互斥锁。Redis 不可用时退化为空锁，由数据库行锁兜底。
type OrderLock struct {
	key   string
	token string
}

func orderLockKey(kind, no string) string {
	return fmt.Sprintf("lock:%s:%s", kind, strings.TrimSpace(no))
}

// AcquireOrderLock 以 SET NX PX 抢占单据锁。返回 false 表示其他进程正在处理同一单据。
func AcquireOrderLock(ctx context.Context, kind, no string, ttl time.Duration) (*OrderLock, bool, error) {
	if strings.TrimSpace(no) == "" {
		return nil, false, fmt.Errorf("order lock: empty order no")
	}
	if !Enabled() {
		return &OrderLock{}, true, nil
	}
	if ttl <= 0 {
		ttl = defaultOrderLockTTL
	}
	lock := &OrderLock{
		key:   buildKey(orderLockKey(kind, no)),
		token: uuid.NewString(),
	}
	ok, err := redisClient.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// Release 释放单据锁。
func (l *OrderLock) Release(ctx context.Context) error {
	if l == nil || l.key == "" || !Enabled() {
		return nil
	}
	return releaseScript.Run(ctx, redisClient, []string{l.key}, l.token).Err()
}

// AcquirePaymentLock 支付单锁。
func AcquirePaymentLock(ctx context.Context, orderNo string, ttl time.Duration) (*OrderLock, bool, error) {
	return AcquireOrderLock(ctx, "payment", orderNo, ttl)
}

// AcquireRefundLock 退款单锁。
func AcquireRefundLock(ctx context.Context, refundNo string, ttl time.Duration) (*OrderLock, bool, error) {
	return AcquireOrderLock(ctx, "refund", refundNo, ttl)
}

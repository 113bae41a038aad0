package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	rd "github.com/redis/go-redis/v9"
)

// popDue 原子地取出 score <= now 的成员并删除，避免多个 worker 重复消费。
// KEYS[1]=zset，ARGV[1]=当前毫秒时间戳，ARGV[2]=单次上限
var popDue = rd.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #items > 0 then
  redis.call('ZREM', KEYS[1], unpack(items))
end
return items
`)

// PushDelayed 将 member 放入延迟队列，到 dueAt 后可被取出。
func PushDelayed(ctx context.Context, rdb *rd.Client, key, member string, dueAt time.Time) error {
	err := rdb.ZAdd(ctx, key, rd.Z{Score: float64(dueAt.UnixMilli()), Member: member}).Err()
	return errors.Wrap(err, "zadd delayed")
}

// PopDue 取出最多 limit 个已到期成员。
func PopDue(ctx context.Context, rdb *rd.Client, key string, now time.Time, limit int) ([]string, error) {
	items, err := popDue.Run(ctx, rdb, []string{key}, now.UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "pop due")
	}
	return items, nil
}

// DelayedLen 队列中尚未取出的成员数。
func DelayedLen(ctx context.Context, rdb *rd.Client, key string) (int64, error) {
	n, err := rdb.ZCard(ctx, key).Result()
	return n, errors.Wrap(err, "zcard delayed")
}

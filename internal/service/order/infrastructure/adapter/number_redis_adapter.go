package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"takeout/internal/service/order/domain"
)

const numberKeyPrefix = "order:number:"

// NumberRedisAdapter 用 Redis 按天自增生成订单号：yyyyMMdd + 6 位序号
type NumberRedisAdapter struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewNumberRedisAdapter(rdb redis.Cmdable) *NumberRedisAdapter {
	return &NumberRedisAdapter{rdb: rdb, now: time.Now}
}

func (a *NumberRedisAdapter) Next(ctx context.Context) (string, error) {
	day := a.now().Format("20060102")
	key := numberKeyPrefix + day

	pipe := a.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", domain.Unavailable(err, "generate order number")
	}
	return fmt.Sprintf("%s%06d", day, incr.Val()), nil
}

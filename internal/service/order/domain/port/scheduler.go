// internal/service/order/domain/port/scheduler.go
package port

import (
	"context"
	"time"

	"takeout/internal/service/order/domain"
)

// DelayScheduler 投递一条在 ttl 后到期的支付超时消息
type DelayScheduler interface {
	SchedulePaymentTimeout(ctx context.Context, msg domain.PaymentTimeoutMessage, ttl time.Duration) error
}

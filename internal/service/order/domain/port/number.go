// internal/service/order/domain/port/number.go
package port

import "context"

// NumberGenerator 生成全局唯一的订单号
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

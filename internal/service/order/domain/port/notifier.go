// internal/service/order/domain/port/notifier.go
package port

import (
	"context"

	"takeout/internal/service/order/domain"
)

// Notifier 把订单事件推送给所有在线商家，尽力而为
type Notifier interface {
	Notify(ctx context.Context, event domain.OrderEvent)
}

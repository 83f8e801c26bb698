package adapter

import (
	"context"

	"takeout/internal/pkg/logger"
	"takeout/internal/service/order/domain"
	"takeout/internal/service/push"
)

// Broadcaster 由 push.Hub 实现
type Broadcaster interface {
	Broadcast(ctx context.Context, msg push.Message) (push.BroadcastReport, error)
}

// NotifierPushAdapter 实现了 port.Notifier，把订单事件广播给所有在线商家
type NotifierPushAdapter struct {
	hub Broadcaster
}

func NewNotifierPushAdapter(hub Broadcaster) *NotifierPushAdapter {
	return &NotifierPushAdapter{hub: hub}
}

func (a *NotifierPushAdapter) Notify(ctx context.Context, ev domain.OrderEvent) {
	report, err := a.hub.Broadcast(ctx, push.Message{
		Type:    int(ev.Kind),
		OrderID: ev.OrderID,
		Content: ev.Content,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("order_id", ev.OrderID).Str("kind", ev.Kind.String()).Msg("broadcast failed")
		return
	}
	logger.Ctx(ctx).Info().Int64("order_id", ev.OrderID).Str("kind", ev.Kind.String()).
		Int("delivered", report.Delivered).Int("failed", report.Failed).Msg("order event pushed")
}

// internal/service/order/domain/event.go
package domain

import "time"

// EventKind 推送给商家端的事件类型，数值即推送 JSON 中的 type
type EventKind int

const (
	EventNewOrder      EventKind = 1 // 来单提醒
	EventReminder      EventKind = 2 // 客户催单
	EventAutoCancelled EventKind = 3 // 超时自动取消
)

func (k EventKind) String() string {
	switch k {
	case EventNewOrder:
		return "NEW_ORDER"
	case EventReminder:
		return "REMINDER"
	case EventAutoCancelled:
		return "AUTO_CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// OrderEvent 是需要推送给在线商家的订单事件
type OrderEvent struct {
	Kind    EventKind
	OrderID int64
	Content string
}

// NewOrderEvent 按事件类型生成推送文案，文案中携带订单号
func NewOrderEvent(kind EventKind, o *Order) OrderEvent {
	var content string
	switch kind {
	case EventNewOrder:
		content = "订单号：" + o.Number
	case EventReminder:
		content = "订单号：" + o.Number + "，客户催单"
	case EventAutoCancelled:
		content = "订单号：" + o.Number + "，超时未支付已自动取消"
	}
	return OrderEvent{Kind: kind, OrderID: o.ID, Content: content}
}

// PaymentTimeoutMessage 是延迟队列中的消息体，以订单号作为关联键
type PaymentTimeoutMessage struct {
	OrderNumber string    `json:"orderNumber"`
	OrderID     int64     `json:"orderId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	TraceID     string    `json:"traceId,omitempty"`
}

// Outcome 区分实际执行与已被其他触发器处理
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyResolved
)

func (o Outcome) String() string {
	if o == OutcomeApplied {
		return "applied"
	}
	return "already_resolved"
}

// internal/service/order/domain/order.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReasonUserCancelled  = "user cancelled"
	ReasonPaymentTimeout = "order timeout, auto-cancelled by system"
)

// Order 是订单聚合的根实体
type Order struct {
	ID              int64
	Number          string
	UserID          int64
	Status          Status
	PayStatus       PayStatus
	Amount          decimal.Decimal
	Address         string
	Remark          string
	OrderTime       time.Time
	CheckoutTime    *time.Time
	CancelTime      *time.Time
	CancelReason    string
	RejectionReason string
	DeliveryTime    *time.Time
	UpdatedAt       time.Time
	UpdatedBy       int64
}

// NewOrder 创建一个待付款的订单
func NewOrder(number string, userID int64, amount decimal.Decimal, address, remark string, audit Audit) (*Order, error) {
	if number == "" || userID <= 0 {
		return nil, ErrInvalidArgument
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidArgument
	}
	return &Order{
		Number:    number,
		UserID:    userID,
		Status:    StatusPendingPayment,
		PayStatus: PayStatusUnpaid,
		Amount:    amount,
		Address:   address,
		Remark:    remark,
		OrderTime: audit.At,
		UpdatedAt: audit.At,
		UpdatedBy: audit.ActorID,
	}, nil
}

// Clone 返回一份独立副本，流转在副本上进行，写库成功后才替换
func (o *Order) Clone() *Order {
	c := *o
	c.CheckoutTime = copyTime(o.CheckoutTime)
	c.CancelTime = copyTime(o.CancelTime)
	c.DeliveryTime = copyTime(o.DeliveryTime)
	return &c
}

// Effect 描述一次流转带来的副作用，由应用层在写库成功后执行
type Effect struct {
	Refund bool
	Event  EventKind // 0 表示无需推送
}

// Apply 在订单上执行流转。前置条件不满足时返回 *TransitionError，订单不被修改。
func (o *Order) Apply(t Trigger, reason string, audit Audit) (Effect, error) {
	if !CanApply(t, o.Status) {
		return Effect{}, &TransitionError{OrderID: o.ID, Trigger: t, From: o.Status}
	}
	var eff Effect
	switch t {
	case TriggerPay:
		o.Status = StatusToBeConfirmed
		o.PayStatus = PayStatusPaid
		o.CheckoutTime = timePtr(audit.At)
		eff.Event = EventNewOrder
	case TriggerConfirm:
		o.Status = StatusConfirmed
	case TriggerReject:
		o.RejectionReason = reason
		eff.Refund = o.cancel(reason, audit.At)
	case TriggerCancelByUser:
		eff.Refund = o.cancel(ReasonUserCancelled, audit.At)
	case TriggerCancelByMerchant:
		eff.Refund = o.cancel(reason, audit.At)
	case TriggerDeliver:
		o.Status = StatusDeliveryInProgress
	case TriggerComplete, TriggerTimeoutComplete:
		o.Status = StatusCompleted
		o.DeliveryTime = timePtr(audit.At)
	case TriggerTimeoutCancel:
		eff.Refund = o.cancel(ReasonPaymentTimeout, audit.At)
		eff.Event = EventAutoCancelled
	case TriggerReminder:
		// 催单不修改订单
		return Effect{Event: EventReminder}, nil
	}
	o.UpdatedAt = audit.At
	o.UpdatedBy = audit.ActorID
	return eff, nil
}

// cancel 返回是否需要退款。只有已支付的订单会被标记为 REFUNDED。
func (o *Order) cancel(reason string, at time.Time) bool {
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.CancelTime = timePtr(at)
	if o.PayStatus == PayStatusPaid {
		o.PayStatus = PayStatusRefunded
		return true
	}
	return false
}

// PaymentOverdue 待付款且下单时间早于 now-deadline
func (o *Order) PaymentOverdue(now time.Time, deadline time.Duration) bool {
	return o.Status == StatusPendingPayment && o.OrderTime.Before(now.Add(-deadline))
}

// DeliveryOverdue 派送中且下单时间早于 now-deadline
func (o *Order) DeliveryOverdue(now time.Time, deadline time.Duration) bool {
	return o.Status == StatusDeliveryInProgress && o.OrderTime.Before(now.Add(-deadline))
}

func timePtr(t time.Time) *time.Time { return &t }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

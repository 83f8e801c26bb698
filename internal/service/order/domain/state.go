// internal/service/order/domain/state.go
package domain

import "fmt"

// Status 定义了订单的生命周期状态，数值与数据库中的 status 列一致
type Status int

const (
	StatusPendingPayment     Status = 1 // 待付款
	StatusToBeConfirmed      Status = 2 // 待接单
	StatusConfirmed          Status = 3 // 已接单
	StatusDeliveryInProgress Status = 4 // 派送中
	StatusCompleted          Status = 5 // 已完成
	StatusCancelled          Status = 6 // 已取消
)

func (s Status) String() string {
	switch s {
	case StatusPendingPayment:
		return "PENDING_PAYMENT"
	case StatusToBeConfirmed:
		return "TO_BE_CONFIRMED"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusDeliveryInProgress:
		return "DELIVERY_IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) Valid() bool {
	return s >= StatusPendingPayment && s <= StatusCancelled
}

// IsTerminal 已完成和已取消的订单不再流转
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PayStatus 支付状态，只能 UNPAID -> PAID -> REFUNDED
type PayStatus int

const (
	PayStatusUnpaid   PayStatus = 0
	PayStatusPaid     PayStatus = 1
	PayStatusRefunded PayStatus = 2
)

func (p PayStatus) String() string {
	switch p {
	case PayStatusUnpaid:
		return "UNPAID"
	case PayStatusPaid:
		return "PAID"
	case PayStatusRefunded:
		return "REFUNDED"
	default:
		return fmt.Sprintf("PayStatus(%d)", int(p))
	}
}

// Trigger 标识一次状态流转的来源，同时用作指标标签
type Trigger string

const (
	TriggerPay              Trigger = "pay"
	TriggerConfirm          Trigger = "confirm"
	TriggerReject           Trigger = "reject"
	TriggerCancelByUser     Trigger = "cancel_by_user"
	TriggerCancelByMerchant Trigger = "cancel_by_merchant"
	TriggerDeliver          Trigger = "deliver"
	TriggerComplete         Trigger = "complete"
	TriggerTimeoutCancel    Trigger = "timeout_cancel"
	TriggerTimeoutComplete  Trigger = "timeout_complete"
	TriggerReminder         Trigger = "reminder"
)

func is(want Status) func(Status) bool {
	return func(s Status) bool { return s == want }
}

// preconditions 是合法流转的唯一来源，key 为触发器，value 判断当前状态是否允许
var preconditions = map[Trigger]func(Status) bool{
	TriggerPay:              is(StatusPendingPayment),
	TriggerConfirm:          is(StatusToBeConfirmed),
	TriggerReject:           is(StatusToBeConfirmed),
	TriggerCancelByUser:     func(s Status) bool { return s.Valid() && s <= StatusToBeConfirmed },
	TriggerCancelByMerchant: func(s Status) bool { return s.Valid() && s <= StatusDeliveryInProgress },
	TriggerDeliver:          is(StatusConfirmed),
	TriggerComplete:         is(StatusDeliveryInProgress),
	TriggerTimeoutCancel:    is(StatusPendingPayment),
	TriggerTimeoutComplete:  is(StatusDeliveryInProgress),
	TriggerReminder:         is(StatusToBeConfirmed),
}

// CanApply 判断触发器在给定状态下是否合法
func CanApply(t Trigger, s Status) bool {
	check, ok := preconditions[t]
	return ok && check(s)
}

// IsTimeoutTrigger 超时类触发器在前置条件不满足时返回 AlreadyResolved 而不是错误
func (t Trigger) IsTimeoutTrigger() bool {
	return t == TriggerTimeoutCancel || t == TriggerTimeoutComplete
}

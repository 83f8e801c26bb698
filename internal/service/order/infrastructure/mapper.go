// internal/service/order/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"time"

	"takeout/internal/service/order/domain"
)

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(m *OrderModel) *domain.Order {
	if m == nil {
		return nil
	}
	return &domain.Order{
		ID:              m.ID,
		Number:          m.Number,
		UserID:          m.UserID,
		Status:          domain.Status(m.Status),
		PayStatus:       domain.PayStatus(m.PayStatus),
		Amount:          m.Amount,
		Address:         m.Address,
		Remark:          m.Remark,
		OrderTime:       m.OrderTime,
		CheckoutTime:    fromNullTime(m.CheckoutTime),
		CancelTime:      fromNullTime(m.CancelTime),
		CancelReason:    m.CancelReason,
		RejectionReason: m.RejectionReason,
		DeliveryTime:    fromNullTime(m.DeliveryTime),
		UpdatedAt:       m.UpdatedAt,
		UpdatedBy:       m.UpdatedBy,
	}
}

// FromDomainOrder 将领域模型转换为数据库模型（用于插入）
func FromDomainOrder(o *domain.Order) *OrderModel {
	if o == nil {
		return nil
	}
	return &OrderModel{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Status:          int(o.Status),
		PayStatus:       int(o.PayStatus),
		Amount:          o.Amount,
		Address:         o.Address,
		Remark:          o.Remark,
		OrderTime:       o.OrderTime,
		CheckoutTime:    toNullTime(o.CheckoutTime),
		CancelTime:      toNullTime(o.CancelTime),
		CancelReason:    o.CancelReason,
		RejectionReason: o.RejectionReason,
		DeliveryTime:    toNullTime(o.DeliveryTime),
		UpdatedAt:       o.UpdatedAt,
		UpdatedBy:       o.UpdatedBy,
	}
}

// mutableColumns 一次状态流转可能修改的列，条件更新时整体写入
func mutableColumns(o *domain.Order) map[string]interface{} {
	return map[string]interface{}{
		"status":           int(o.Status),
		"pay_status":       int(o.PayStatus),
		"checkout_time":    toNullTime(o.CheckoutTime),
		"cancel_time":      toNullTime(o.CancelTime),
		"cancel_reason":    o.CancelReason,
		"rejection_reason": o.RejectionReason,
		"delivery_time":    toNullTime(o.DeliveryTime),
		"updated_at":       o.UpdatedAt,
		"updated_by":       o.UpdatedBy,
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// internal/service/order/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"takeout/internal/service/order/domain"
)

// SubmitOrderRequest 是用户下单用例的输入数据
type SubmitOrderRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address"`
	Remark  string          `json:"remark"`
}

// SubmitOrderResponse 是用户下单用例的输出数据
type SubmitOrderResponse struct {
	ID        int64           `json:"id"`
	Number    string          `json:"orderNumber"`
	Amount    decimal.Decimal `json:"orderAmount"`
	OrderTime time.Time       `json:"orderTime"`
}

// OrderView 对外展示的订单信息
type OrderView struct {
	ID              int64           `json:"id"`
	Number          string          `json:"number"`
	UserID          int64           `json:"userId"`
	Status          int             `json:"status"`
	PayStatus       int             `json:"payStatus"`
	Amount          decimal.Decimal `json:"amount"`
	Address         string          `json:"address,omitempty"`
	Remark          string          `json:"remark,omitempty"`
	OrderTime       time.Time       `json:"orderTime"`
	CheckoutTime    *time.Time      `json:"checkoutTime,omitempty"`
	CancelTime      *time.Time      `json:"cancelTime,omitempty"`
	CancelReason    string          `json:"cancelReason,omitempty"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	DeliveryTime    *time.Time      `json:"deliveryTime,omitempty"`
}

func toView(o *domain.Order) *OrderView {
	return &OrderView{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Status:          int(o.Status),
		PayStatus:       int(o.PayStatus),
		Amount:          o.Amount,
		Address:         o.Address,
		Remark:          o.Remark,
		OrderTime:       o.OrderTime,
		CheckoutTime:    o.CheckoutTime,
		CancelTime:      o.CancelTime,
		CancelReason:    o.CancelReason,
		RejectionReason: o.RejectionReason,
		DeliveryTime:    o.DeliveryTime,
	}
}

// PageResult 分页查询结果
type PageResult struct {
	Total   int64        `json:"total"`
	Records []*OrderView `json:"records"`
}

// Statistics 各状态订单数量
type Statistics struct {
	ToBeConfirmed      int64 `json:"toBeConfirmed"`
	Confirmed          int64 `json:"confirmed"`
	DeliveryInProgress int64 `json:"deliveryInProgress"`
}

// SweepReport 单次扫描的统计
type SweepReport struct {
	Scanned         int
	Applied         int
	AlreadyResolved int
	Failed          int
}

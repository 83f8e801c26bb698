// internal/service/order/domain/port/payment.go
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

type RefundRequest struct {
	OrderID     int64           `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

// PaymentGateway 外部支付网关
type PaymentGateway interface {
	Refund(ctx context.Context, req RefundRequest) error
}

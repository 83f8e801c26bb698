package adapter

import (
	"context"

	"takeout/internal/pkg/httpclient"
	"takeout/internal/pkg/logger"
	"takeout/internal/service/order/domain"
	"takeout/internal/service/order/domain/port"
)

// PaymentHTTPAdapter 调用外部支付网关的退款接口。refundURL 为空时只记录日志。
type PaymentHTTPAdapter struct {
	client    *httpclient.Client
	refundURL string
}

func NewPaymentHTTPAdapter(client *httpclient.Client, refundURL string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, refundURL: refundURL}
}

func (a *PaymentHTTPAdapter) Refund(ctx context.Context, req port.RefundRequest) error {
	if a.refundURL == "" {
		logger.Ctx(ctx).Info().Int64("order_id", req.OrderID).Str("order_number", req.OrderNumber).
			Str("amount", req.Amount.StringFixed(2)).Msg("payment gateway not configured, refund recorded locally")
		return nil
	}
	if err := a.client.PostJSON(ctx, a.refundURL, req, nil); err != nil {
		return domain.Unavailable(err, "refund")
	}
	return nil
}

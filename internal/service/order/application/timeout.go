// internal/service/order/application/timeout.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"takeout/internal/pkg/logger"
	"takeout/internal/service/order/domain"
)

const (
	JobPaymentSweep  = "payment_sweep"
	JobDeliverySweep = "delivery_sweep"
)

// HandlePaymentTimeout 处理从死信主题消费到的支付超时消息。
// 订单仍待付款时取消，否则返回 AlreadyResolved。
func (s *OrderApplicationService) HandlePaymentTimeout(ctx context.Context, msg domain.PaymentTimeoutMessage) (outcome domain.Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "app.HandlePaymentTimeout", trace.WithSpanKind(trace.SpanKindConsumer))
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.number", msg.OrderNumber))

	order, err := s.repo.FindByNumber(ctx, msg.OrderNumber)
	if err != nil {
		return 0, err
	}
	_, outcome, err = s.transition(ctx, order, domain.TriggerTimeoutCancel, domain.SystemActor, "", time.Time{})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.String("order.outcome", outcome.String()))
	return outcome, nil
}

// SweepPaymentOverdue 取消所有超过支付截止时间仍未付款的订单
func (s *OrderApplicationService) SweepPaymentOverdue(ctx context.Context) (SweepReport, error) {
	return s.sweep(ctx, JobPaymentSweep, domain.StatusPendingPayment, s.cfg.PaymentDeadline, domain.TriggerTimeoutCancel)
}

// SweepDeliveryOverdue 把超过派送截止时间仍在派送中的订单置为已完成
func (s *OrderApplicationService) SweepDeliveryOverdue(ctx context.Context) (SweepReport, error) {
	return s.sweep(ctx, JobDeliverySweep, domain.StatusDeliveryInProgress, s.cfg.DeliveryDeadline, domain.TriggerTimeoutComplete)
}

// sweep 逐个处理超时订单，单个订单失败只记录日志，不影响其余订单
func (s *OrderApplicationService) sweep(ctx context.Context, job string, status domain.Status, deadline time.Duration, trigger domain.Trigger) (report SweepReport, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Sweep."+job)
	defer func() { endSpan(span, err) }()

	// 同一轮扫描的所有订单使用同一个时间点
	sweepAt := s.now()

	orders, err := s.repo.ListOverdue(ctx, status, sweepAt.Add(-deadline))
	if err != nil {
		s.metrics.SweepRuns.WithLabelValues(job, "error").Inc()
		return report, err
	}
	report.Scanned = len(orders)

	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		_, outcome, terr := s.transition(ctx, o, trigger, domain.SystemActor, "", sweepAt)
		switch {
		case terr != nil:
			report.Failed++
			s.metrics.SweepOrders.WithLabelValues(job, "error").Inc()
			logger.Ctx(ctx).Error().Err(terr).Int64("order_id", o.ID).Str("job", job).Msg("sweep failed for order, continuing")
		case outcome == domain.OutcomeAlreadyResolved:
			report.AlreadyResolved++
			s.metrics.SweepOrders.WithLabelValues(job, "already_resolved").Inc()
		default:
			report.Applied++
			s.metrics.SweepOrders.WithLabelValues(job, "applied").Inc()
		}
	}

	s.metrics.SweepRuns.WithLabelValues(job, "ok").Inc()
	span.SetAttributes(
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.applied", report.Applied),
		attribute.Int("sweep.failed", report.Failed),
	)
	logger.Ctx(ctx).Info().Str("job", job).Int("scanned", report.Scanned).Int("applied", report.Applied).
		Int("already_resolved", report.AlreadyResolved).Int("failed", report.Failed).Msg("sweep finished")
	return report, nil
}

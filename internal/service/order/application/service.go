// internal/service/order/application/service.go
package application

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"takeout/internal/pkg/logger"
	"takeout/internal/service/order/domain"
	"takeout/internal/service/order/domain/port"
)

// 并发修改导致条件更新失败时，交互式操作最多重新评估的次数
const maxAttempts = 3

const refundTimeout = 10 * time.Second

// Config 超时相关参数，TTL 与扫描截止时间相互独立
type Config struct {
	PaymentTTL       time.Duration
	PaymentDeadline  time.Duration
	DeliveryDeadline time.Duration
}

// Dependencies 应用服务依赖的端口
type Dependencies struct {
	Repo      domain.OrderRepository
	Scheduler port.DelayScheduler
	Notifier  port.Notifier
	Payment   port.PaymentGateway
	Numbers   port.NumberGenerator
	Tracer    trace.Tracer
	Metrics   *Metrics
}

// OrderApplicationService 编排订单生命周期：用户与商家的操作、支付超时、定时扫描都经由这里。
type OrderApplicationService struct {
	repo      domain.OrderRepository
	scheduler port.DelayScheduler
	notifier  port.Notifier
	payment   port.PaymentGateway
	numbers   port.NumberGenerator
	tracer    trace.Tracer
	metrics   *Metrics
	cfg       Config
	now       func() time.Time

	bg sync.WaitGroup // 异步退款
}

type Option func(*OrderApplicationService)

// WithClock 替换时间源，测试中使用
func WithClock(now func() time.Time) Option {
	return func(s *OrderApplicationService) { s.now = now }
}

func NewOrderApplicationService(deps Dependencies, cfg Config, opts ...Option) *OrderApplicationService {
	s := &OrderApplicationService{
		repo:      deps.Repo,
		scheduler: deps.Scheduler,
		notifier:  deps.Notifier,
		payment:   deps.Payment,
		numbers:   deps.Numbers,
		tracer:    deps.Tracer,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("order-service")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait 等待所有异步退款结束，服务关闭时调用
func (s *OrderApplicationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit 用户下单：生成订单号、落库，并投递支付超时的延迟消息。
// 延迟消息投递失败只记录日志，由定时扫描兜底。
func (s *OrderApplicationService) Submit(ctx context.Context, actor domain.Actor, req SubmitOrderRequest) (resp *SubmitOrderResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Submit")
	defer func() { endSpan(span, err) }()

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, err
	}
	order, err := domain.NewOrder(number, actor.ID, req.Amount, req.Address, req.Remark, domain.NewAudit(actor, s.now()))
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.String("order.number", order.Number))

	msg := domain.PaymentTimeoutMessage{
		OrderNumber: order.Number,
		OrderID:     order.ID,
		ScheduledAt: order.OrderTime,
		TraceID:     span.SpanContext().TraceID().String(),
	}
	if err := s.scheduler.SchedulePaymentTimeout(ctx, msg, s.cfg.PaymentTTL); err != nil {
		span.AddEvent("payment timeout message not scheduled")
		logger.Ctx(ctx).Warn().Err(err).Str("order_number", order.Number).
			Msg("failed to schedule payment timeout message, relying on sweep")
	}

	logger.Ctx(ctx).Info().Int64("order_id", order.ID).Str("order_number", order.Number).
		Str("amount", order.Amount.StringFixed(2)).Msg("order submitted")
	return &SubmitOrderResponse{ID: order.ID, Number: order.Number, Amount: order.Amount, OrderTime: order.OrderTime}, nil
}

// Pay 支付回调，以订单号作为关联键
func (s *OrderApplicationService) Pay(ctx context.Context, actor domain.Actor, orderNumber string) (*OrderView, error) {
	return s.interactive(ctx, "app.Pay", domain.TriggerPay, actor, "", func(ctx context.Context) (*domain.Order, error) {
		return s.repo.FindByNumber(ctx, orderNumber)
	})
}

func (s *OrderApplicationService) Confirm(ctx context.Context, actor domain.Actor, id int64) (*OrderView, error) {
	return s.interactive(ctx, "app.Confirm", domain.TriggerConfirm, actor, "", s.byID(id))
}

func (s *OrderApplicationService) Reject(ctx context.Context, actor domain.Actor, id int64, reason string) (*OrderView, error) {
	if reason == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "rejection reason is required")
	}
	return s.interactive(ctx, "app.Reject", domain.TriggerReject, actor, reason, s.byID(id))
}

func (s *OrderApplicationService) CancelByUser(ctx context.Context, actor domain.Actor, id int64) (*OrderView, error) {
	return s.interactive(ctx, "app.CancelByUser", domain.TriggerCancelByUser, actor, "", s.byID(id))
}

func (s *OrderApplicationService) CancelByMerchant(ctx context.Context, actor domain.Actor, id int64, reason string) (*OrderView, error) {
	if reason == "" {
		return nil, errors.Wrap(domain.ErrInvalidArgument, "cancel reason is required")
	}
	return s.interactive(ctx, "app.CancelByMerchant", domain.TriggerCancelByMerchant, actor, reason, s.byID(id))
}

func (s *OrderApplicationService) Deliver(ctx context.Context, actor domain.Actor, id int64) (*OrderView, error) {
	return s.interactive(ctx, "app.Deliver", domain.TriggerDeliver, actor, "", s.byID(id))
}

func (s *OrderApplicationService) Complete(ctx context.Context, actor domain.Actor, id int64) (*OrderView, error) {
	return s.interactive(ctx, "app.Complete", domain.TriggerComplete, actor, "", s.byID(id))
}

// Reminder 客户催单，只推送不修改订单
func (s *OrderApplicationService) Reminder(ctx context.Context, actor domain.Actor, id int64) error {
	_, err := s.interactive(ctx, "app.Reminder", domain.TriggerReminder, actor, "", s.byID(id))
	return err
}

// Get 查询订单详情。用户只能看到自己的订单。
func (s *OrderApplicationService) Get(ctx context.Context, actor domain.Actor, id int64) (view *OrderView, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Get")
	defer func() { endSpan(span, err) }()

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, order); err != nil {
		return nil, err
	}
	return toView(order), nil
}

// Search 商家端条件分页查询
func (s *OrderApplicationService) Search(ctx context.Context, q domain.SearchQuery) (page *PageResult, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Search")
	defer func() { endSpan(span, err) }()

	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 10
	}
	orders, total, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	page = &PageResult{Total: total, Records: make([]*OrderView, 0, len(orders))}
	for _, o := range orders {
		page.Records = append(page.Records, toView(o))
	}
	return page, nil
}

// Statistics 待接单、已接单、派送中的订单数量
func (s *OrderApplicationService) Statistics(ctx context.Context) (stats *Statistics, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Statistics")
	defer func() { endSpan(span, err) }()

	counts, err := s.repo.CountByStatus(ctx,
		domain.StatusToBeConfirmed, domain.StatusConfirmed, domain.StatusDeliveryInProgress)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		ToBeConfirmed:      counts[domain.StatusToBeConfirmed],
		Confirmed:          counts[domain.StatusConfirmed],
		DeliveryInProgress: counts[domain.StatusDeliveryInProgress],
	}, nil
}

func (s *OrderApplicationService) byID(id int64) func(context.Context) (*domain.Order, error) {
	return func(ctx context.Context) (*domain.Order, error) {
		return s.repo.FindByID(ctx, id)
	}
}

func (s *OrderApplicationService) interactive(ctx context.Context, spanName string, trigger domain.Trigger, actor domain.Actor, reason string,
	load func(context.Context) (*domain.Order, error)) (view *OrderView, err error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer func() { endSpan(span, err) }()

	current, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, current); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", current.ID), attribute.String("order.status", current.Status.String()))

	next, _, err := s.transition(ctx, current, trigger, actor, reason, time.Time{})
	if err != nil {
		return nil, err
	}
	return toView(next), nil
}

// transition 对 current 执行流转，写库使用以 current.Status 为条件的更新。
// at 为零值时使用当前时间作为审计时间。
// 条件更新失败说明订单已被并发修改：重新读取后，超时触发器直接返回 AlreadyResolved，
// 其他触发器在新状态上重新评估，最多 maxAttempts 次。
func (s *OrderApplicationService) transition(ctx context.Context, current *domain.Order, trigger domain.Trigger, actor domain.Actor, reason string, at time.Time) (*domain.Order, domain.Outcome, error) {
	log := logger.Ctx(ctx)
	for attempt := 1; ; attempt++ {
		if trigger.IsTimeoutTrigger() && !domain.CanApply(trigger, current.Status) {
			s.countTransition(trigger, "already_resolved")
			log.Info().Int64("order_id", current.ID).Str("status", current.Status.String()).
				Str("trigger", string(trigger)).Msg("order already resolved, nothing to do")
			return current, domain.OutcomeAlreadyResolved, nil
		}

		now := at
		if now.IsZero() {
			now = s.now()
		}
		audit := domain.NewAudit(actor, now)
		next := current.Clone()
		effect, err := next.Apply(trigger, reason, audit)
		if err != nil {
			s.countTransition(trigger, "rejected")
			return nil, 0, err
		}

		if trigger != domain.TriggerReminder {
			ok, err := s.repo.UpdateIfStatus(ctx, next, current.Status)
			if err != nil {
				s.countTransition(trigger, "error")
				return nil, 0, err
			}
			if !ok {
				latest, err := s.repo.FindByID(ctx, current.ID)
				if err != nil {
					s.countTransition(trigger, "error")
					return nil, 0, err
				}
				log.Warn().Int64("order_id", current.ID).Str("observed", current.Status.String()).
					Str("latest", latest.Status.String()).Str("trigger", string(trigger)).
					Msg("conditional update lost a race, re-evaluating")
				if attempt >= maxAttempts {
					s.countTransition(trigger, "rejected")
					return nil, 0, &domain.TransitionError{OrderID: latest.ID, Trigger: trigger, From: latest.Status}
				}
				current = latest
				continue
			}
		}

		s.countTransition(trigger, "applied")
		log.Info().Int64("order_id", next.ID).Str("trigger", string(trigger)).
			Str("from", current.Status.String()).Str("to", next.Status.String()).
			Int64("actor_id", actor.ID).Msg("order transition applied")

		if effect.Refund {
			s.refundAsync(ctx, next)
		}
		if effect.Event != 0 && s.notifier != nil {
			s.notifier.Notify(ctx, domain.NewOrderEvent(effect.Event, next))
		}
		return next, domain.OutcomeApplied, nil
	}
}

// refundAsync 退款在后台执行，不阻塞也不回滚状态流转
func (s *OrderApplicationService) refundAsync(ctx context.Context, o *domain.Order) {
	if s.payment == nil {
		return
	}
	req := port.RefundRequest{OrderID: o.ID, OrderNumber: o.Number, Amount: o.Amount, Reason: o.CancelReason}
	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(bgCtx, refundTimeout)
		defer cancel()
		if err := s.payment.Refund(ctx, req); err != nil {
			s.metrics.Refunds.WithLabelValues("error").Inc()
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", req.OrderID).Msg("refund failed")
			return
		}
		s.metrics.Refunds.WithLabelValues("ok").Inc()
		logger.Ctx(ctx).Info().Int64("order_id", req.OrderID).Str("amount", req.Amount.StringFixed(2)).Msg("refund requested")
	}()
}

func (s *OrderApplicationService) countTransition(trigger domain.Trigger, outcome string) {
	s.metrics.Transitions.WithLabelValues(string(trigger), outcome).Inc()
}

func checkOwner(actor domain.Actor, o *domain.Order) error {
	if actor.Kind == domain.ActorUser && o.UserID != actor.ID {
		return &domain.NotFoundError{Key: o.Number}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

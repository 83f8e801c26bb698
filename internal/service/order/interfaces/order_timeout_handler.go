// internal/service/order/interfaces/order_timeout_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"takeout/internal/pkg/logger"
	"takeout/internal/pkg/mq"
	"takeout/internal/service/order/application"
	"takeout/internal/service/order/domain"
)

// MessageReader 由 *kafka.Reader 实现
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TimeoutHandler 由 application.OrderApplicationService 实现
type TimeoutHandler interface {
	HandlePaymentTimeout(ctx context.Context, msg domain.PaymentTimeoutMessage) (domain.Outcome, error)
}

// OrderTimeoutConsumerAdapter 是一个驱动适配器，它监听死信主题并驱动超时取消。
// 每条消息处理后都会提交 offset：格式错误、订单不存在、存储异常都只记录日志，由定时扫描兜底。
type OrderTimeoutConsumerAdapter struct {
	reader  MessageReader
	handler TimeoutHandler
	metrics *application.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrderTimeoutConsumerAdapter 创建一个新的Kafka消费者适配器。
func NewOrderTimeoutConsumerAdapter(reader MessageReader, handler TimeoutHandler, metrics *application.Metrics) *OrderTimeoutConsumerAdapter {
	if metrics == nil {
		metrics = application.NewMetrics(nil)
	}
	return &OrderTimeoutConsumerAdapter{reader: reader, handler: handler, metrics: metrics}
}

// Start 开始监听Kafka主题。
func (a *OrderTimeoutConsumerAdapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Printf("✅ Order timeout consumer started.")
		for {
			// 我们使用FetchMessage而不是ReadMessage，以便手动控制提交
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Order timeout consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				select {
				case <-time.After(time.Second): // 避免快速失败循环
				case <-ctx.Done():
					return
				}
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			a.processMessage(msgCtx, msg)

			if err := a.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *OrderTimeoutConsumerAdapter) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("close timeout reader")
	}
	logger.Ctx(ctx).Printf("✅ Order timeout consumer stopped.")
}

// processMessage 反序列化消息并调用应用服务。
func (a *OrderTimeoutConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) {
	var event domain.PaymentTimeoutMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil || event.OrderNumber == "" {
		if err == nil {
			err = errors.New("order number is empty")
		}
		a.metrics.DeadLetters.WithLabelValues("malformed").Inc()
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("malformed payment timeout message, skipped")
		return
	}

	outcome, err := a.handler.HandlePaymentTimeout(ctx, event)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		a.metrics.DeadLetters.WithLabelValues("not_found").Inc()
		logger.Ctx(ctx).Warn().Str("order_number", event.OrderNumber).Msg("order of timeout message not found, skipped")
	case err != nil:
		a.metrics.DeadLetters.WithLabelValues("error").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("order_number", event.OrderNumber).Msg("failed to handle payment timeout, leaving it to the sweep")
	default:
		a.metrics.DeadLetters.WithLabelValues(outcome.String()).Inc()
		logger.Ctx(ctx).Info().Str("order_number", event.OrderNumber).Str("outcome", outcome.String()).Msg("payment timeout handled")
	}
}

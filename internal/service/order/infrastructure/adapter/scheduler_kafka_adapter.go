package adapter

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"takeout/internal/pkg/mq"
	"takeout/internal/service/order/domain"
)

// SchedulerKafkaAdapter 实现了 port.DelayScheduler 接口。
// 消息先进入普通延迟主题，携带 TTL 与死信主题两个消息头，到期后由延迟路由器转投死信主题。
type SchedulerKafkaAdapter struct {
	delayWriter     messageWriter
	deadLetterTopic string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewSchedulerKafkaAdapter 创建一个新的延迟任务调度器适配器。
func NewSchedulerKafkaAdapter(brokers []string, delayTopic, deadLetterTopic string) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{
		delayWriter:     mq.NewKafkaWriter(brokers, delayTopic),
		deadLetterTopic: deadLetterTopic,
	}
}

// SchedulePaymentTimeout 实现了发送延迟消息的逻辑。
func (a *SchedulerKafkaAdapter) SchedulePaymentTimeout(ctx context.Context, msg domain.PaymentTimeoutMessage, ttl time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal payment timeout message")
	}

	err = mq.ProduceMessage(ctx, a.delayWriter, []byte(msg.OrderNumber), body,
		kafka.Header{Key: mq.HeaderMessageTTL, Value: []byte(strconv.FormatInt(ttl.Milliseconds(), 10))},
		kafka.Header{Key: mq.HeaderDeadLetterTopic, Value: []byte(a.deadLetterTopic)},
	)
	if err != nil {
		return domain.Unavailable(err, "publish payment timeout message")
	}
	return nil
}

// Close 关闭底层的Kafka writer。
func (a *SchedulerKafkaAdapter) Close() error {
	return a.delayWriter.Close()
}

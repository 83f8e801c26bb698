// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

const (
	// HeaderMessageTTL 消息的存活时间（毫秒），到期后由延迟路由器转投死信主题
	HeaderMessageTTL = "x-message-ttl"
	// HeaderDeadLetterTopic 消息过期后需要转投的死信主题
	HeaderDeadLetterTopic = "x-dead-letter-topic"
	// HeaderOriginalTopic 记录消息被转投之前所在的主题
	HeaderOriginalTopic = "x-original-topic"
	// HeaderOriginalOffset 记录消息被转投之前的 offset
	HeaderOriginalOffset = "x-original-offset"
	// HeaderExpiredAt 消息实际到期的时间 (RFC3339)
	HeaderExpiredAt = "x-expired-at"
)

// NewKafkaWriter 创建一个指向固定主题的生产者。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // 同一个 key 进入同一个分区，保证单个订单内的顺序
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewKafkaReader 创建一个消费组模式的消费者，offset 由调用方手动提交。
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

// Writer 由 *kafka.Writer 实现
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ProduceMessage 发送一条消息，并自动把当前的追踪上下文写进消息头。
func ProduceMessage(ctx context.Context, writer Writer, key, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{
		Key:     key,
		Value:   value,
		Headers: headers,
	}
	InjectTraceContext(ctx, &msg.Headers)
	return writer.WriteMessages(ctx, msg)
}

// HeaderValue 读取指定的消息头，不存在时返回空串。
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// InjectTraceContext 将 ctx 中的追踪信息写入 Kafka 消息头。
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	carrier := KafkaHeaderCarrier(*headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	*headers = carrier
}

// ExtractTraceContext 从 Kafka 消息头中恢复追踪上下文。
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

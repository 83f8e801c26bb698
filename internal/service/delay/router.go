// internal/service/delay/router.go
package delay

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"takeout/internal/pkg/logger"
	"takeout/internal/pkg/mq"
)

const (
	serviceName    = "delay-router"
	fetchBackoff   = time.Second
	maxPublishWait = 30 * time.Second
)

var tracer = otel.Tracer(serviceName)

// ErrMissingDeadLetterTopic 消息没有携带死信主题，无法路由
var ErrMissingDeadLetterTopic = errors.New("missing " + mq.HeaderDeadLetterTopic + " header")

// MessageReader 由 *kafka.Reader 实现
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter 由 *kafka.Writer 实现
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Router 负责把普通延迟主题中的消息在 TTL 到期后转投到死信主题。
// 队头消息未到期时阻塞等待，而不是丢弃或跳过。
type Router struct {
	reader     MessageReader
	newWriter  func(topic string) MessageWriter
	defaultTTL time.Duration

	writers    map[string]MessageWriter // key: 死信主题
	writerLock sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	routed *prometheus.CounterVec

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRouter 创建延迟路由器。消息没有 TTL 头时使用 defaultTTL。
func NewRouter(reader MessageReader, newWriter func(topic string) MessageWriter, defaultTTL time.Duration, reg prometheus.Registerer) *Router {
	routed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "takeout",
		Subsystem: "delay",
		Name:      "routed_messages_total",
		Help:      "Delayed messages handled by the router by result.",
	}, []string{"result"})
	if reg != nil {
		reg.MustRegister(routed)
	}
	return &Router{
		reader:     reader,
		newWriter:  newWriter,
		defaultTTL: defaultTTL,
		writers:    make(map[string]MessageWriter),
		now:        time.Now,
		sleep:      sleepCtx,
		routed:     routed,
	}
}

// NewKafkaRouter 使用真实的 Kafka 读写器
func NewKafkaRouter(brokers []string, delayTopic, groupID string, defaultTTL time.Duration, reg prometheus.Registerer) *Router {
	reader := mq.NewKafkaReader(brokers, delayTopic, groupID)
	return NewRouter(reader, func(topic string) MessageWriter {
		return mq.NewKafkaWriter(brokers, topic)
	}, defaultTTL, reg)
}

// Start 启动后台路由循环
func (r *Router) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		logger.Ctx(ctx).Printf("✅ Delay router started.")
		r.run(ctx)
	}()
	return nil
}

// Stop 停止路由循环并关闭所有读写器
func (r *Router) Stop(ctx context.Context) {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if err := r.reader.Close(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("close delay reader")
	}
	r.closeWriters(ctx)
	logger.Ctx(ctx).Printf("✅ Delay router stopped.")
}

func (r *Router) run(ctx context.Context) {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("🛑 Delay router shutting down.")
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("fetch delayed message failed, retrying")
			if r.sleep(ctx, fetchBackoff) != nil {
				return
			}
			continue
		}
		if err := r.handle(ctx, msg); err != nil {
			// 只有 ctx 取消才会走到这里，offset 未提交，重启后重新投递
			return
		}
	}
}

// handle 处理一条消息：等待到期、转投、提交 offset。
// 返回错误表示 ctx 已取消，消息未提交。
func (r *Router) handle(parent context.Context, msg kafka.Message) error {
	ctx, span := tracer.Start(mq.ExtractTraceContext(parent, msg.Headers), "delay.Route", trace.WithAttributes(
		attribute.String("messaging.source", msg.Topic),
		attribute.Int64("messaging.offset", msg.Offset),
	))
	defer span.End()

	target := mq.HeaderValue(msg.Headers, mq.HeaderDeadLetterTopic)
	if target == "" {
		// 无法路由的消息直接提交，否则会被反复消费
		span.RecordError(ErrMissingDeadLetterTopic)
		logger.Ctx(ctx).Error().Err(ErrMissingDeadLetterTopic).Int64("offset", msg.Offset).Msg("skipping unroutable message")
		r.routed.WithLabelValues("skipped").Inc()
		r.commit(ctx, msg)
		return nil
	}

	due := DueAt(msg, r.defaultTTL)
	span.SetAttributes(attribute.String("delay.due", due.Format(time.RFC3339)))
	if wait := due.Sub(r.now()); wait > 0 {
		span.AddEvent("HeadMessageNotDue")
		if err := r.sleep(parent, wait); err != nil {
			return err
		}
	}

	backoff := fetchBackoff
	for {
		err := r.publish(ctx, target, msg)
		if err == nil {
			break
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish to dead-letter topic failed")
		logger.Ctx(ctx).Error().Err(err).Str("topic", target).Dur("retry_in", backoff).Msg("publish to dead-letter topic failed")
		r.routed.WithLabelValues("publish_error").Inc()
		if err := r.sleep(parent, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, maxPublishWait)
	}

	r.routed.WithLabelValues("routed").Inc()
	r.commit(ctx, msg)
	logger.Ctx(ctx).Info().Str("key", string(msg.Key)).Str("topic", target).Msg("delayed message expired and routed")
	return nil
}

// DueAt 计算消息的到期时间：进入主题的时间 + TTL
func DueAt(msg kafka.Message, defaultTTL time.Duration) time.Time {
	return msg.Time.Add(TTLOf(msg, defaultTTL))
}

// TTLOf 解析 x-message-ttl（毫秒），缺失或非法时返回 defaultTTL
func TTLOf(msg kafka.Message, defaultTTL time.Duration) time.Duration {
	raw := mq.HeaderValue(msg.Headers, mq.HeaderMessageTTL)
	if raw == "" {
		return defaultTTL
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return defaultTTL
	}
	return time.Duration(ms) * time.Millisecond
}

func (r *Router) publish(ctx context.Context, topic string, msg kafka.Message) error {
	r.writerLock.Lock()
	writer, exists := r.writers[topic]
	if !exists {
		writer = r.newWriter(topic)
		r.writers[topic] = writer
	}
	r.writerLock.Unlock()

	return mq.ProduceMessage(ctx, writer, msg.Key, msg.Value,
		kafka.Header{Key: mq.HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: mq.HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: mq.HeaderExpiredAt, Value: []byte(r.now().UTC().Format(time.RFC3339))},
	)
}

func (r *Router) commit(ctx context.Context, msg kafka.Message) {
	if err := r.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit delayed message")
	}
}

// closeWriters 安全地关闭所有 writer
func (r *Router) closeWriters(ctx context.Context) {
	r.writerLock.Lock()
	defer r.writerLock.Unlock()
	for topic, writer := range r.writers {
		if err := writer.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// internal/service/push/hub.go
package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"takeout/internal/pkg/logger"
)

var (
	// ErrMessageDeliveryFailure 单个会话投递失败，只记录不传播
	ErrMessageDeliveryFailure = errors.New("message delivery failure")
	ErrHubClosed              = errors.New("hub closed")
)

const defaultFanOut = 32

// Session 是会话的传输句柄，由 Hub 持有
type Session interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

type entry struct {
	session     Session
	connectedAt time.Time
}

// BroadcastReport 一次广播的投递结果
type BroadcastReport struct {
	Attempted int
	Delivered int
	Failed    int
}

// Hub 维护所有在线的商家会话，并负责消息广播。
// 会话只通过 Unregister/Detach 移除，投递失败不会移除会话。
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool

	fanOut  int
	metrics *Metrics
	now     func() time.Time
}

func NewHub(metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		sessions: make(map[string]*entry),
		fanOut:   defaultFanOut,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Register 注册会话。同一个 id 重复注册同一个句柄是空操作；
// 换了新句柄时替换旧句柄并关闭它。
func (h *Hub) Register(ctx context.Context, id string, s Session) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	old, exists := h.sessions[id]
	if exists && old.session == s {
		h.mu.Unlock()
		return nil
	}
	h.sessions[id] = &entry{session: s, connectedAt: h.now()}
	h.metrics.Sessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()

	if exists {
		_ = old.session.Close()
		logger.Ctx(ctx).Info().Str("session_id", id).Msg("session replaced by a new connection")
		return nil
	}
	logger.Ctx(ctx).Info().Str("session_id", id).Msg("session registered")
	return nil
}

// Unregister 移除并关闭会话，id 不存在时什么也不做
func (h *Hub) Unregister(ctx context.Context, id string) {
	h.remove(ctx, id, nil)
}

// Detach 只有当 id 当前对应的仍是 s 时才移除，连接断开时使用，避免误删重连后的新会话
func (h *Hub) Detach(ctx context.Context, id string, s Session) {
	h.remove(ctx, id, s)
}

func (h *Hub) remove(ctx context.Context, id string, want Session) {
	h.mu.Lock()
	e, ok := h.sessions[id]
	if !ok || (want != nil && e.session != want) {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, id)
	h.metrics.Sessions.Set(float64(len(h.sessions)))
	h.mu.Unlock()

	_ = e.session.Close()
	logger.Ctx(ctx).Info().Str("session_id", id).Dur("connected_for", h.now().Sub(e.connectedAt)).Msg("session unregistered")
}

// Len 当前在线会话数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast 向调用时刻已注册的所有会话投递消息。
// 单个会话失败只记录日志和指标，不影响其他会话。
func (h *Hub) Broadcast(ctx context.Context, msg Message) (BroadcastReport, error) {
	data, err := msg.Encode()
	if err != nil {
		return BroadcastReport{}, errors.Wrap(err, "encode push message")
	}

	h.mu.RLock()
	snapshot := make(map[string]Session, len(h.sessions))
	for id, e := range h.sessions {
		snapshot[id] = e.session
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		report = BroadcastReport{Attempted: len(snapshot)}
	)
	g := new(errgroup.Group)
	g.SetLimit(h.fanOut)
	for id, s := range snapshot {
		g.Go(func() error {
			sendErr := s.Send(ctx, data)
			mu.Lock()
			defer mu.Unlock()
			if sendErr != nil {
				report.Failed++
				h.metrics.Deliveries.WithLabelValues("failed").Inc()
				err := fmt.Errorf("%w: session %s: %v", ErrMessageDeliveryFailure, id, sendErr)
				logger.Ctx(ctx).Warn().Err(err).Str("session_id", id).Int("type", msg.Type).Msg("push delivery failed")
				return nil
			}
			report.Delivered++
			h.metrics.Deliveries.WithLabelValues("delivered").Inc()
			return nil
		})
	}
	_ = g.Wait()

	logger.Ctx(ctx).Debug().Int("type", msg.Type).Int64("order_id", msg.OrderID).
		Int("attempted", report.Attempted).Int("failed", report.Failed).Msg("broadcast finished")
	return report, nil
}

// Close 关闭所有会话，之后的 Register 返回 ErrHubClosed
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*entry)
	h.closed = true
	h.metrics.Sessions.Set(0)
	h.mu.Unlock()

	for id, e := range sessions {
		if err := e.session.Close(); err != nil {
			logger.Ctx(ctx).Debug().Err(err).Str("session_id", id).Msg("close session")
		}
	}
	logger.Ctx(ctx).Printf("✅ Push hub drained, %d sessions closed.", len(sessions))
	return nil
}

package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"takeout/internal/service/order/domain"
	"takeout/internal/service/order/domain/port"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*domain.Order

	failUpdate map[int64]error
	failList   error
	// staleUpdate 中的订单每次条件更新都返回未命中，模拟持续的并发写
	staleUpdate map[int64]bool
	// raceTo 中的订单在第一次条件更新前被"别人"改成指定状态
	raceTo  map[int64]domain.Status
	updates int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]*domain.Order{}, failUpdate: map[int64]error{}, staleUpdate: map[int64]bool{}, raceTo: map[int64]domain.Status{}}
}

func (r *memoryRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *memoryRepo) put(o *domain.Order) *domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == 0 {
		r.nextID++
		o.ID = r.nextID
	} else if o.ID > r.nextID {
		r.nextID = o.ID
	}
	r.orders[o.ID] = o.Clone()
	return o
}

func (r *memoryRepo) get(id int64) *domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].Clone()
}

func (r *memoryRepo) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, &domain.NotFoundError{Key: fmt.Sprint(id)}
	}
	return o.Clone(), nil
}

func (r *memoryRepo) FindByNumber(_ context.Context, number string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Number == number {
			return o.Clone(), nil
		}
	}
	return nil, &domain.NotFoundError{Key: number}
}

func (r *memoryRepo) UpdateIfStatus(_ context.Context, o *domain.Order, expected domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if err := r.failUpdate[o.ID]; err != nil {
		return false, err
	}
	if r.staleUpdate[o.ID] {
		return false, nil
	}
	if st, ok := r.raceTo[o.ID]; ok {
		delete(r.raceTo, o.ID)
		if cur := r.orders[o.ID]; cur != nil {
			cur.Status = st
		}
	}
	cur, ok := r.orders[o.ID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	r.orders[o.ID] = o.Clone()
	return true, nil
}

func (r *memoryRepo) ListOverdue(_ context.Context, status domain.Status, before time.Time) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status == status && o.OrderTime.Before(before) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) Search(_ context.Context, q domain.SearchQuery) ([]*domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if q.Status == 0 || o.Status == q.Status {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	start := (q.Page - 1) * q.PageSize
	if start > len(out) {
		start = len(out)
	}
	end := start + q.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *memoryRepo) CountByStatus(_ context.Context, statuses ...domain.Status) (map[domain.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.Status]int64{}
	for _, o := range r.orders {
		for _, s := range statuses {
			if o.Status == s {
				counts[s]++
			}
		}
	}
	return counts, nil
}

type recordingScheduler struct {
	mu   sync.Mutex
	msgs []domain.PaymentTimeoutMessage
	ttls []time.Duration
	err  error
}

func (s *recordingScheduler) SchedulePaymentTimeout(_ context.Context, msg domain.PaymentTimeoutMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	s.ttls = append(s.ttls, ttl)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev domain.OrderEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingPayment struct {
	mu      sync.Mutex
	refunds []port.RefundRequest
}

func (p *recordingPayment) Refund(_ context.Context, req port.RefundRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, req)
	return nil
}

func (p *recordingPayment) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refunds)
}

type sequenceNumbers struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceNumbers) Next(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("20261017%06d", g.n), nil
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (r *memoryRepo) updateCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

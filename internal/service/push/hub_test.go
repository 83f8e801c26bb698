package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu     sync.Mutex
	got    [][]byte
	fail   bool
	closed bool
}

func (f *fakeSession) Send(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.got = append(f.got, data)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestBroadcast_DeliversToAllDespiteFailingSession(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)
	const n = 5
	sessions := make([]*fakeSession, n)
	for i := range sessions {
		sessions[i] = &fakeSession{fail: i == 2}
		require.NoError(t, hub.Register(ctx, fmt.Sprintf("s%d", i), sessions[i]))
	}

	report, err := hub.Broadcast(ctx, Message{Type: 1, OrderID: 42, Content: "订单号：1"})
	require.NoError(t, err)
	assert.Equal(t, BroadcastReport{Attempted: n, Delivered: n - 1, Failed: 1}, report)

	for i, s := range sessions {
		if i == 2 {
			assert.Zero(t, s.received())
			continue
		}
		require.Equal(t, 1, s.received())
		var m Message
		require.NoError(t, json.Unmarshal(s.got[0], &m))
		assert.Equal(t, Message{Type: 1, OrderID: 42, Content: "订单号：1"}, m)
	}
	// 投递失败不移除会话
	assert.Equal(t, n, hub.Len())
	assert.False(t, sessions[2].isClosed())
}

func TestBroadcast_EncodesWireFormat(t *testing.T) {
	s := &fakeSession{}
	hub := NewHub(nil)
	require.NoError(t, hub.Register(context.Background(), "a", s))
	_, err := hub.Broadcast(context.Background(), Message{Type: 3, OrderID: 7, Content: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":3,"orderId":7,"content":"x"}`, string(s.got[0]))
}

func TestBroadcast_NoSessions(t *testing.T) {
	report, err := NewHub(nil).Broadcast(context.Background(), Message{Type: 2})
	require.NoError(t, err)
	assert.Equal(t, BroadcastReport{}, report)
}

func TestRegister_Idempotent(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)
	s := &fakeSession{}
	require.NoError(t, hub.Register(ctx, "a", s))
	require.NoError(t, hub.Register(ctx, "a", s))
	assert.Equal(t, 1, hub.Len())
	assert.False(t, s.isClosed())
}

func TestRegister_ReplacesAndClosesOldHandle(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)
	old, fresh := &fakeSession{}, &fakeSession{}
	require.NoError(t, hub.Register(ctx, "a", old))
	require.NoError(t, hub.Register(ctx, "a", fresh))
	assert.Equal(t, 1, hub.Len())
	assert.True(t, old.isClosed())

	// 旧连接断开时不能误删新会话
	hub.Detach(ctx, "a", old)
	assert.Equal(t, 1, hub.Len())

	_, err := hub.Broadcast(ctx, Message{Type: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.received())
	assert.Zero(t, old.received())
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)
	s := &fakeSession{}
	require.NoError(t, hub.Register(ctx, "a", s))

	hub.Unregister(ctx, "a")
	assert.Zero(t, hub.Len())
	assert.True(t, s.isClosed())

	assert.NotPanics(t, func() { hub.Unregister(ctx, "a") })
	assert.NotPanics(t, func() { hub.Unregister(ctx, "never") })
}

func TestClose_DrainsAndRejects(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)
	s := &fakeSession{}
	require.NoError(t, hub.Register(ctx, "a", s))

	require.NoError(t, hub.Close(ctx))
	assert.Zero(t, hub.Len())
	assert.True(t, s.isClosed())
	assert.ErrorIs(t, hub.Register(ctx, "b", &fakeSession{}), ErrHubClosed)
}

func TestBroadcast_ConcurrentWithRegistration(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = hub.Register(ctx, fmt.Sprintf("s%d", i), &fakeSession{})
		}()
		go func() {
			defer wg.Done()
			_, _ = hub.Broadcast(ctx, Message{Type: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, hub.Len())
}

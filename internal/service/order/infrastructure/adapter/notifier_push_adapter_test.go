package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"takeout/internal/service/order/domain"
	"takeout/internal/service/push"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, msg push.Message) (push.BroadcastReport, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(push.BroadcastReport), args.Error(1)
}

func TestNotify_MapsEventToMessage(t *testing.T) {
	b := new(mockBroadcaster)
	b.On("Broadcast", mock.Anything, push.Message{Type: 3, OrderID: 11, Content: "订单号：n，超时未支付已自动取消"}).
		Return(push.BroadcastReport{Attempted: 1, Delivered: 1}, nil).Once()

	a := NewNotifierPushAdapter(b)
	a.Notify(context.Background(), domain.NewOrderEvent(domain.EventAutoCancelled, &domain.Order{ID: 11, Number: "n"}))

	b.AssertExpectations(t)
	assert.Len(t, b.Calls, 1)
}

package adapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeout/internal/pkg/mq"
	"takeout/internal/service/order/domain"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestSchedulePaymentTimeout_Headers(t *testing.T) {
	w := &captureWriter{}
	a := &SchedulerKafkaAdapter{delayWriter: w, deadLetterTopic: "order.delay.dlx"}

	msg := domain.PaymentTimeoutMessage{OrderNumber: "202610170001", OrderID: 1, ScheduledAt: time.Unix(0, 0).UTC()}
	require.NoError(t, a.SchedulePaymentTimeout(context.Background(), msg, 60*time.Second))

	require.Len(t, w.msgs, 1)
	got := w.msgs[0]
	assert.Equal(t, "202610170001", string(got.Key))
	assert.Equal(t, "60000", mq.HeaderValue(got.Headers, mq.HeaderMessageTTL))
	assert.Equal(t, "order.delay.dlx", mq.HeaderValue(got.Headers, mq.HeaderDeadLetterTopic))

	var decoded domain.PaymentTimeoutMessage
	require.NoError(t, json.Unmarshal(got.Value, &decoded))
	assert.Equal(t, msg.OrderNumber, decoded.OrderNumber)
}

func TestSchedulePaymentTimeout_BrokerDown(t *testing.T) {
	a := &SchedulerKafkaAdapter{delayWriter: &captureWriter{err: errors.New("no brokers")}, deadLetterTopic: "dlx"}
	err := a.SchedulePaymentTimeout(context.Background(), domain.PaymentTimeoutMessage{OrderNumber: "x"}, time.Second)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

// internal/service/order/application/metrics.go
package application

import "github.com/prometheus/client_golang/prometheus"

// Metrics 订单服务的业务指标，必须通过 NewMetrics 创建。reg 为 nil 时不注册，只在内存中计数。
type Metrics struct {
	Transitions *prometheus.CounterVec
	SweepRuns   *prometheus.CounterVec
	SweepOrders *prometheus.CounterVec
	Refunds     *prometheus.CounterVec
	DeadLetters *prometheus.CounterVec
}

// NewMetrics 创建指标，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "takeout",
			Subsystem: "order",
			Name:      "transitions_total",
			Help:      "Order state transitions by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "takeout",
			Subsystem: "order",
			Name:      "sweep_runs_total",
			Help:      "Timeout sweep executions by job and result.",
		}, []string{"job", "result"}),
		SweepOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "takeout",
			Subsystem: "order",
			Name:      "sweep_orders_total",
			Help:      "Orders processed by timeout sweeps.",
		}, []string{"job", "outcome"}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "takeout",
			Subsystem: "order",
			Name:      "refunds_total",
			Help:      "Refund requests sent to the payment gateway.",
		}, []string{"result"}),
		DeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "takeout",
			Subsystem: "order",
			Name:      "dead_letter_messages_total",
			Help:      "Payment timeout messages consumed from the dead-letter topic.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.SweepRuns, m.SweepOrders, m.Refunds, m.DeadLetters)
	}
	return m
}

// internal/service/push/metrics.go
package push

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Sessions   prometheus.Gauge
	Deliveries *prometheus.CounterVec
}

// NewMetrics 创建推送指标，reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "takeout",
			Subsystem: "push",
			Name:      "sessions",
			Help:      "Live merchant websocket sessions.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "takeout",
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Broadcast deliveries by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.Deliveries)
	}
	return m
}

// cmd/delay-scheduler/main.go
package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"takeout/internal/pkg/bootstrap"
	"takeout/internal/pkg/logger"
	"takeout/internal/service/delay"
)

const serviceName = "delay-scheduler"

// 独立部署的延迟路由器：消费延迟主题，消息到期后转投死信主题
func main() {
	cfg, err := bootstrap.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)

	kafkaCfg := cfg.Infra.Kafka
	router := delay.NewKafkaRouter(kafkaCfg.Brokers, kafkaCfg.DelayTopic, kafkaCfg.RouterGroup,
		cfg.App.Order.PaymentTTL, prometheus.DefaultRegisterer)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.HTTPPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.Handle("GET /metrics", promhttp.Handler())
		},
		Runners: []bootstrap.Runner{router},
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("delay scheduler exited with error")
	}
}

// cmd/order-service/main.go
package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"takeout/internal/pkg/bootstrap"
	"takeout/internal/pkg/httpclient"
	"takeout/internal/pkg/logger"
	"takeout/internal/pkg/mq"
	"takeout/internal/pkg/zookeeper"
	"takeout/internal/service/delay"
	"takeout/internal/service/order/application"
	"takeout/internal/service/order/infrastructure"
	"takeout/internal/service/order/infrastructure/adapter"
	"takeout/internal/service/order/interfaces"
	"takeout/internal/service/push"
)

const serviceName = "order-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg, err := bootstrap.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.Log.Level, cfg.Log.Pretty)
	log := logger.L()

	tracer := otel.Tracer(serviceName)
	reg := prometheus.DefaultRegisterer

	// 1. 基础设施
	db, err := infrastructure.NewMySQL(cfg.Infra.MySQL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get sql.DB")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Infra.Redis.Addr,
		Password: cfg.Infra.Redis.Password,
		DB:       cfg.Infra.Redis.DB,
	})

	kafkaCfg := cfg.Infra.Kafka
	scheduler := adapter.NewSchedulerKafkaAdapter(kafkaCfg.Brokers, kafkaCfg.DelayTopic, kafkaCfg.DeadLetterTopic)

	hub := push.NewHub(push.NewMetrics(reg))

	// 2. 应用服务
	orderCfg := cfg.App.Order
	orderMetrics := application.NewMetrics(reg)
	appSvc := application.NewOrderApplicationService(application.Dependencies{
		Repo:      infrastructure.NewGormOrderRepository(db),
		Scheduler: scheduler,
		Notifier:  adapter.NewNotifierPushAdapter(hub),
		Payment:   adapter.NewPaymentHTTPAdapter(httpclient.NewClient(tracer, 10*time.Second), cfg.Infra.Payment.RefundURL),
		Numbers:   adapter.NewNumberRedisAdapter(rdb),
		Tracer:    tracer,
		Metrics:   orderMetrics,
	}, application.Config{
		PaymentTTL:       orderCfg.PaymentTTL,
		PaymentDeadline:  orderCfg.PaymentDeadline,
		DeliveryDeadline: orderCfg.DeliveryDeadline,
	})

	// 3. 后台任务：死信消费者 + 兜底扫描，可选地在进程内运行延迟路由器
	timeoutConsumer := interfaces.NewOrderTimeoutConsumerAdapter(
		mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.DeadLetterTopic, kafkaCfg.TimeoutGroup),
		appSvc, orderMetrics)

	locks, closeZK := sweepLocks(cfg.Infra.Zookeeper)
	sweepJob := interfaces.NewSweepJob(appSvc, orderCfg.PaymentSweepCron, orderCfg.DeliverySweepCron, locks)

	runners := []bootstrap.Runner{timeoutConsumer, sweepJob}
	if orderCfg.EmbeddedDelay {
		runners = append(runners, delay.NewKafkaRouter(kafkaCfg.Brokers, kafkaCfg.DelayTopic, kafkaCfg.RouterGroup, orderCfg.PaymentTTL, reg))
	}

	// Closers 逆序执行：先等待退款协程，再关推送连接，最后释放中间件连接
	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.HTTPPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewOrderHandler(appSvc, prometheus.DefaultGatherer).RegisterRoutes(appCtx.Mux)
			push.NewHandler(hub).RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
		Closers: []func(ctx context.Context) error{
			func(context.Context) error { return sqlDB.Close() },
			func(context.Context) error { return rdb.Close() },
			closeZK,
			func(context.Context) error { return scheduler.Close() },
			hub.Close,
			appSvc.Wait,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("order service exited with error")
	}
}

// sweepLocks 配置了 ZooKeeper 时为每个扫描任务创建分布式锁，未配置时扫描任务不加锁运行
func sweepLocks(cfg bootstrap.ZookeeperConfig) (map[string]interfaces.Locker, func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if len(cfg.Servers) == 0 {
		return nil, noop
	}
	conn, err := zookeeper.Connect(cfg.Servers, cfg.SessionTimeout)
	if err != nil {
		logger.L().Warn().Err(err).Msg("zookeeper unavailable, sweeps run without lock")
		return nil, noop
	}
	locks := make(map[string]interfaces.Locker)
	for _, job := range []string{application.JobPaymentSweep, application.JobDeliverySweep} {
		lock, err := zookeeper.NewDistributedLock(conn, "order-"+job)
		if err != nil {
			logger.L().Warn().Err(err).Str("job", job).Msg("create sweep lock failed, job runs without lock")
			continue
		}
		locks[job] = lock
	}
	return locks, func(context.Context) error {
		conn.Close()
		return nil
	}
}

// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"takeout/internal/pkg/logger"
	"takeout/internal/pkg/nacos"
	"takeout/internal/pkg/tracing"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// Runner 是随服务一起启动和关停的后台组件（Kafka 消费者、定时任务等）。
// Start 不应阻塞，长期运行的逻辑放到自己的 goroutine 中。
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 允许每个服务注册自己的 HTTP 路由
	Runners          []Runner
	Closers          []func(ctx context.Context) error // 关停时按注册的逆序执行
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
// 阻塞直到收到 SIGINT/SIGTERM 或 HTTP 服务器异常退出。
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()
	log := logger.L()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}

	// Nacos 是可选的，未配置地址时只在本地运行
	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			return errors.Wrap(err, "init nacos client")
		}
		if ip, err = GetOutboundIP(); err != nil {
			return errors.Wrap(err, "get outbound ip")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if err := startRunners(gctx, info.Runners); err != nil {
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if namingClient != nil {
			_ = namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port)
		}
		_ = tp.Shutdown(shutdownCtx)
		return err
	}

	g.Go(func() error {
		log.Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("✅ HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", server.Addr)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("service", info.ServiceName).Msg("Shutting down service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关停顺序：先从注册中心摘除，再停 HTTP 入口和后台任务，最后释放底层连接
		if namingClient != nil {
			if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				log.Error().Err(err).Msg("Error deregistering from Nacos")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down http server")
		}
		for i := len(info.Runners) - 1; i >= 0; i-- {
			info.Runners[i].Stop(shutdownCtx)
		}
		for i := len(info.Closers) - 1; i >= 0; i-- {
			if err := info.Closers[i](shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error closing resource")
			}
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracer provider")
		}
		log.Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
		return nil
	})

	return g.Wait()
}

// startRunners 依次启动后台组件；某个组件启动失败时，逆序停止已经启动的组件。
func startRunners(ctx context.Context, runners []Runner) error {
	for i, r := range runners {
		if err := r.Start(ctx); err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for j := i - 1; j >= 0; j-- {
				runners[j].Stop(stopCtx)
			}
			cancel()
			return errors.Wrapf(err, "start runner %d", i)
		}
	}
	return nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func parsePort(v string) (int, error) {
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return 0, errors.Errorf("invalid port %q", v)
	}
	return port, nil
}

// internal/service/order/interfaces/sweep_job.go
package interfaces

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"takeout/internal/pkg/logger"
	"takeout/internal/service/order/application"
)

// Sweeper 由 application.OrderApplicationService 实现
type Sweeper interface {
	SweepPaymentOverdue(ctx context.Context) (application.SweepReport, error)
	SweepDeliveryOverdue(ctx context.Context) (application.SweepReport, error)
}

// Locker 多副本部署时保证同一时刻只有一个实例执行扫描，由 zookeeper.DistributedLock 实现
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// SweepJob 定时扫描超时订单，作为延迟消息的兜底
type SweepJob struct {
	sweeper      Sweeper
	paymentSpec  string
	deliverySpec string
	locks        map[string]Locker // key: job 名，为空表示不加锁
	cron         *cron.Cron
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewSweepJob(sweeper Sweeper, paymentSpec, deliverySpec string, locks map[string]Locker) *SweepJob {
	return &SweepJob{
		sweeper:      sweeper,
		paymentSpec:  paymentSpec,
		deliverySpec: deliverySpec,
		locks:        locks,
		cron:         cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start 注册两个扫描任务并启动调度
func (j *SweepJob) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)
	if _, err := j.cron.AddFunc(j.paymentSpec, func() {
		j.RunOnce(j.ctx, application.JobPaymentSweep, j.sweeper.SweepPaymentOverdue)
	}); err != nil {
		return errors.Wrapf(err, "schedule %s", application.JobPaymentSweep)
	}
	if _, err := j.cron.AddFunc(j.deliverySpec, func() {
		j.RunOnce(j.ctx, application.JobDeliverySweep, j.sweeper.SweepDeliveryOverdue)
	}); err != nil {
		return errors.Wrapf(err, "schedule %s", application.JobDeliverySweep)
	}
	j.cron.Start()
	logger.Ctx(ctx).Info().Str("payment", j.paymentSpec).Str("delivery", j.deliverySpec).Msg("✅ Sweep jobs started")
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (j *SweepJob) Stop(ctx context.Context) {
	if j.cancel != nil {
		j.cancel()
	}
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
	logger.Ctx(ctx).Printf("✅ Sweep jobs stopped.")
}

// RunOnce 执行一次扫描。拿不到分布式锁时跳过本轮。
func (j *SweepJob) RunOnce(ctx context.Context, job string, sweep func(context.Context) (application.SweepReport, error)) {
	log := logger.Ctx(ctx).With().Str("job", job).Logger()

	if lock := j.locks[job]; lock != nil {
		ok, err := lock.TryLock()
		if err != nil {
			log.Error().Err(err).Msg("acquire sweep lock failed, skipping this round")
			return
		}
		if !ok {
			log.Debug().Msg("another instance is sweeping, skipping this round")
			return
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Error().Err(err).Msg("release sweep lock failed")
			}
		}()
	}

	if _, err := sweep(ctx); err != nil {
		log.Error().Err(err).Msg("sweep aborted")
	}
}

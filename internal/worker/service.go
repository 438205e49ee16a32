package worker

import (
	"context"
	"errors"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	sweepBatchLimit  = 200
	cleanupInterval  = 24 * time.Hour
	cleanupBatchSize = 500
)

// Service 异步队列服务，承载消费者与对账调度循环
type Service struct {
	name      string
	server    *asynq.Server
	mux       *asynq.ServeMux
	consumer  *Consumer
	reconcile config.ReconcileConfig
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, reconcile config.ReconcileConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:      "worker",
		server:    server,
		mux:       mux,
		consumer:  consumer,
		reconcile: reconcile,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil {
		go s.runLoop(ctx, "expire", intervalOrDefault(s.reconcile.ExpireIntervalSeconds, 300), s.runExpireSweep)
		go s.runLoop(ctx, "retry", intervalOrDefault(s.reconcile.RetryIntervalSeconds, 600), s.runRetrySweep)
		go s.runLoop(ctx, "sync", intervalOrDefault(s.reconcile.SyncIntervalSeconds, 3600), s.runSyncSweep)
		go s.runLoop(ctx, "review", intervalOrDefault(s.reconcile.ReviewIntervalSeconds, 1800), s.runReviewSweep)
		go s.runLoop(ctx, "cleanup", cleanupInterval, s.runCleanup)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func intervalOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(seconds) * time.Second
}

func (s *Service) runLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	if s == nil || fn == nil {
		return
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debugw("worker_loop_stopped", "loop", name)
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Service) runExpireSweep(_ context.Context) {
	if s.consumer.PaymentService == nil {
		return
	}
	if n := s.consumer.PaymentService.ExpireSweep(time.Now(), sweepBatchLimit); n > 0 {
		logger.Infow("worker_expire_sweep_done", "expired", n)
	}
}

func (s *Service) runRetrySweep(ctx context.Context) {
	now := time.Now()
	if s.consumer.PaymentService != nil {
		if n := s.consumer.PaymentService.RetrySweep(ctx, now, sweepBatchLimit); n > 0 {
			logger.Infow("worker_payment_retry_sweep_done", "retried", n)
		}
	}
	if s.consumer.RefundService != nil {
		if n := s.consumer.RefundService.RetrySweep(now, sweepBatchLimit); n > 0 {
			logger.Infow("worker_refund_retry_sweep_done", "retried", n)
		}
		if n := s.consumer.RefundService.SubmitSweep(ctx, now, sweepBatchLimit); n > 0 {
			logger.Infow("worker_refund_submit_sweep_done", "submitted", n)
		}
	}
}

func (s *Service) runSyncSweep(ctx context.Context) {
	now := time.Now()
	if s.consumer.PaymentService != nil {
		if n := s.consumer.PaymentService.SyncSweep(ctx, now, sweepBatchLimit); n > 0 {
			logger.Infow("worker_payment_sync_sweep_done", "synced", n)
		}
	}
	if s.consumer.RefundService != nil {
		if n := s.consumer.RefundService.SyncSweep(ctx, now, sweepBatchLimit); n > 0 {
			logger.Infow("worker_refund_sync_sweep_done", "synced", n)
		}
	}
}

func (s *Service) runReviewSweep(_ context.Context) {
	if s.consumer.RiskService != nil {
		if n := s.consumer.RiskService.ReviewTimeoutSweep(time.Now(), sweepBatchLimit); n > 0 {
			logger.Infow("worker_risk_review_timeout_sweep_done", "resolved", n)
		}
	}
	if s.consumer.RefundService != nil {
		result := s.consumer.RefundService.BatchProcessPending(sweepBatchLimit)
		if result != nil && result.Processed > 0 {
			logger.Infow("worker_refund_batch_audit_done",
				"processed", result.Processed,
				"succeeded", result.Succeeded,
				"failed", result.Failed,
			)
		}
	}
}

func (s *Service) runCleanup(_ context.Context) {
	now := time.Now()
	if s.consumer.PaymentService != nil {
		if n := s.consumer.PaymentService.CleanupRetention(now, cleanupBatchSize); n > 0 {
			logger.Infow("worker_payment_cleanup_done", "removed", n)
		}
	}
	if s.consumer.RefundService != nil {
		if n := s.consumer.RefundService.CleanupRetention(now, cleanupBatchSize); n > 0 {
			logger.Infow("worker_refund_cleanup_done", "removed", n)
		}
	}
}

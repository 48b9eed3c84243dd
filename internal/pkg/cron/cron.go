package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper 过期授权清理
type Sweeper interface {
	SweepExpired(ctx context.Context, dryRun bool) (int64, error)
}

type Service struct {
	sweeper  Sweeper
	interval time.Duration
	log      *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewService(sweeper Sweeper, interval time.Duration, log *zap.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Service{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(1)
	go s.runSweep()
	s.log.Info("cron service started", zap.Duration("sweep_interval", s.interval))
}

// Stop 停止定时任务并等待当前一轮结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.log.Info("cron service stopped")
}

// runSweep 按固定间隔清理过期授权
func (s *Service) runSweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunNow(context.Background()); err != nil {
				s.log.Error("sweep expired entitlements failed", zap.Error(err))
			}
		}
	}
}

// RunNow 立即执行一次清理（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	n, err := s.sweeper.SweepExpired(ctx, false)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired entitlements swept", zap.Int64("count", n))
	}
	return n, nil
}

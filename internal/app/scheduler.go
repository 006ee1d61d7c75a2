package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const reconcileBatchSize = 50

// PendingReconciler повторная итоговая сверка закрытых занятий
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	reconciler PendingReconciler
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(reconciler PendingReconciler, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	go s.runReconcileTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	<-s.done
}

// runReconcileTask периодически досверяет закрытые занятия, у которых сверка не завершилась
func (s *Scheduler) runReconcileTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте: занятия могли закрыться перед падением процесса
	s.reconcilePending(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcilePending(ctx)
		case <-s.stopChan:
			s.logger.Info("Reconcile task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Reconcile task cancelled")
			return
		}
	}
}

func (s *Scheduler) reconcilePending(ctx context.Context) {
	done, err := s.reconciler.ReconcilePending(ctx, reconcileBatchSize)
	if err != nil {
		s.logger.Error("Failed to reconcile pending sessions", zap.Error(err))
		return
	}

	if done > 0 {
		s.logger.Info("Pending sessions reconciled", zap.Int("count", done))
	}
}

package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) ReconcilePending(_ context.Context, limit int) (int, error) {
	r.calls.Add(1)
	if r.err != nil {
		return 0, r.err
	}
	return 1, nil
}

func TestSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	reconciler := &countingReconciler{}
	s := NewScheduler(reconciler, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return reconciler.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	calls := reconciler.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, reconciler.calls.Load())

	s.Stop()
}

func TestSchedulerSurvivesErrors(t *testing.T) {
	reconciler := &countingReconciler{err: errors.New("db down")}
	s := NewScheduler(reconciler, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool {
		return reconciler.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
}

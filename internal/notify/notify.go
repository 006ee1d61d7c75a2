// Package notify рассылает итоги закрытых занятий координаторам.
package notify

import (
	"context"
	"errors"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"go.uber.org/zap"
)

// Notifier получатель итогов занятия
type Notifier interface {
	SessionFinalized(ctx context.Context, summary *model.SessionSummary) error
}

// Multi отправляет итоги во все каналы, сбой одного не мешает остальным
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, logger: logger}
}

// Len количество настроенных каналов
func (m *Multi) Len() int {
	return len(m.notifiers)
}

func (m *Multi) SessionFinalized(ctx context.Context, summary *model.SessionSummary) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.SessionFinalized(ctx, summary); err != nil {
			m.logger.Warn("Notifier failed",
				zap.String("session_id", summary.Session.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/base"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultReconcileTimeout = 30 * time.Second

// ReconciliationService отмечает ABSENT для участников группы без записи посещаемости.
// Вставка игнорирует конфликты, поэтому повторный запуск безопасен
type ReconciliationService struct {
	sessions    SessionStore
	presence    PresenceStore
	enrollments EnrollmentStore
	broadcaster Broadcaster
	notifier    Notifier
	timeout     time.Duration
	now         func() time.Time
	logger      *zap.Logger

	wg sync.WaitGroup
}

func NewReconciliationService(
	sessions SessionStore,
	presence PresenceStore,
	enrollments EnrollmentStore,
	broadcaster Broadcaster,
	notifier Notifier,
	timeout time.Duration,
	logger *zap.Logger,
) *ReconciliationService {
	if timeout <= 0 {
		timeout = DefaultReconcileTimeout
	}
	return &ReconciliationService{
		sessions:    sessions,
		presence:    presence,
		enrollments: enrollments,
		broadcaster: broadcaster,
		notifier:    notifier,
		timeout:     timeout,
		now:         time.Now,
		logger:      logger,
	}
}

// Reconcile сверяет занятие со списком группы. До закрытия даёт предварительный список отсутствующих,
// после закрытия сверка итоговая: занятие помечается сверенным и уходит уведомление
func (s *ReconciliationService) Reconcile(ctx context.Context, sessionID uuid.UUID) (*model.ReconciliationResult, error) {
	if err := requireSessionID(sessionID); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	absent, err := s.absentSet(ctx, session)
	if err != nil {
		return nil, err
	}

	inserted, err := s.presence.InsertAbsent(ctx, session.ID, absent, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert absent: %w", err)
	}

	result := &model.ReconciliationResult{
		SessionID: session.ID,
		Absentees: inserted,
		Final:     !session.IsOpen(),
	}
	if result.Absentees == nil {
		result.Absentees = []string{}
	}

	if len(inserted) > 0 {
		s.broadcaster.Publish(session.ID, realtime.ReconciledMessage(session, inserted))
	}

	s.logger.Info("Session reconciled",
		zap.String("session_id", session.ID.String()),
		zap.String("class_ref", session.ClassRef),
		zap.Int("absent", len(inserted)),
		zap.Bool("final", result.Final),
	)

	if result.Final && session.ReconciledAt == nil {
		if err := s.finalize(ctx, session); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *ReconciliationService) absentSet(ctx context.Context, session *model.Session) ([]string, error) {
	enrolled, err := s.enrollments.ListParticipants(ctx, session.ClassRef)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	records, err := s.presence.ListRecords(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	recorded := make(map[string]struct{}, len(records))
	for _, record := range records {
		recorded[record.ParticipantID] = struct{}{}
	}

	var absent []string
	for _, id := range enrolled {
		if _, ok := recorded[id]; !ok {
			absent = append(absent, id)
		}
	}

	return absent, nil
}

func (s *ReconciliationService) finalize(ctx context.Context, session *model.Session) error {
	now := s.now().UTC()
	if err := s.sessions.MarkReconciled(ctx, session.ID, now); err != nil {
		if errors.Is(err, base.ErrAlreadyReconciled) {
			s.logger.Debug("Session already finalized", zap.String("session_id", session.ID.String()))
			return nil
		}
		return fmt.Errorf("mark reconciled: %w", err)
	}
	session.ReconciledAt = &now

	if s.notifier == nil {
		return nil
	}

	records, err := s.presence.ListRecords(ctx, session.ID)
	if err != nil {
		s.logger.Error("Failed to build session summary",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	summary := Summarize(session, records)
	summary.CreatedAt = now
	if err := s.notifier.SessionFinalized(ctx, summary); err != nil {
		s.logger.Error("Failed to send session summary",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
	}

	return nil
}

// Summarize считает итоги занятия по проекции
func Summarize(session *model.Session, records []*model.AttendanceRecord) *model.SessionSummary {
	summary := &model.SessionSummary{
		Session:   session,
		Absentees: []string{},
	}
	for _, record := range records {
		switch record.Status {
		case model.AttendanceStatusPresent:
			summary.Present++
		case model.AttendanceStatusLate:
			summary.Late++
		case model.AttendanceStatusAbsent:
			summary.Absent++
			summary.Absentees = append(summary.Absentees, record.ParticipantID)
		}
	}
	return summary
}

// Trigger запускает сверку закрытого занятия в фоне, независимо от контекста запроса
func (s *ReconciliationService) Trigger(session *model.Session) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.Reconcile(ctx, session.ID); err != nil {
			s.logger.Error("Background reconciliation failed, sweeper will retry",
				zap.String("session_id", session.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait ждёт завершения фоновых сверок
func (s *ReconciliationService) Wait() {
	s.wg.Wait()
}

// ReconcilePending повторяет итоговую сверку закрытых занятий, для которых она не завершилась
func (s *ReconciliationService) ReconcilePending(ctx context.Context, limit int) (int, error) {
	sessions, err := s.sessions.ListUnreconciled(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unreconciled sessions: %w", err)
	}

	done := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := s.Reconcile(runCtx, session.ID)
		cancel()
		if err != nil {
			s.logger.Error("Failed to reconcile session",
				zap.String("session_id", session.ID.String()),
				zap.Error(err),
			)
			continue
		}
		done++
	}

	return done, nil
}

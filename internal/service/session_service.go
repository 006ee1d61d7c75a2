package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/base"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionService struct {
	sessions    SessionStore
	broadcaster Broadcaster
	reconciler  *ReconciliationService
	location    *time.Location
	now         func() time.Time
	logger      *zap.Logger
}

func NewSessionService(
	sessions SessionStore,
	broadcaster Broadcaster,
	reconciler *ReconciliationService,
	location *time.Location,
	logger *zap.Logger,
) *SessionService {
	if location == nil {
		location = time.UTC
	}
	return &SessionService{
		sessions:    sessions,
		broadcaster: broadcaster,
		reconciler:  reconciler,
		location:    location,
		now:         time.Now,
		logger:      logger,
	}
}

// Start открывает занятие группы. Второе открытое занятие отсекает уникальный индекс хранилища
func (s *SessionService) Start(ctx context.Context, classRef string) (*model.Session, error) {
	classRef, err := normalizeRef("class_ref", classRef)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	local := now.In(s.location)
	session := &model.Session{
		ID:          uuid.New(),
		ClassRef:    classRef,
		SessionDate: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
		StartedAt:   now,
		Status:      model.SessionStatusOpen,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, base.ErrDuplicate) {
			return nil, fmt.Errorf("%w: class %s already has an open session", ErrConflict, classRef)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session started",
		zap.String("session_id", session.ID.String()),
		zap.String("class_ref", classRef),
	)

	return session, nil
}

// Stop закрывает открытое занятие, оповещает подписчиков и запускает сверку в фоне.
// Ошибка сверки не откатывает закрытие
func (s *SessionService) Stop(ctx context.Context, classRef string) (*model.Session, error) {
	classRef, err := normalizeRef("class_ref", classRef)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CloseOpen(ctx, classRef, s.now().UTC())
	if err != nil {
		if errors.Is(err, base.ErrNoOpenSession) {
			return nil, fmt.Errorf("%w: class %s has no open session", ErrNotFound, classRef)
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	s.logger.Info("Session stopped",
		zap.String("session_id", session.ID.String()),
		zap.String("class_ref", classRef),
	)

	s.broadcaster.Publish(session.ID, realtime.LifecycleMessage(session))

	if s.reconciler != nil {
		s.reconciler.Trigger(session)
	}

	return session, nil
}

// Get получает занятие по ID
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	if err := requireSessionID(id); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}

	return session, nil
}

// GetOpen получает текущее открытое занятие группы
func (s *SessionService) GetOpen(ctx context.Context, classRef string) (*model.Session, error) {
	classRef, err := normalizeRef("class_ref", classRef)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetOpenByClass(ctx, classRef)
	if err != nil {
		return nil, fmt.Errorf("get open session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: class %s has no open session", ErrNotFound, classRef)
	}

	return session, nil
}

package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/google/uuid"
)

// SessionStore хранилище занятий (PostgreSQL или SQLite)
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	CloseOpen(ctx context.Context, classRef string, endedAt time.Time) (*model.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetOpenByClass(ctx context.Context, classRef string) (*model.Session, error)
	ListUnreconciled(ctx context.Context, limit int) ([]*model.Session, error)
	MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error
}

// PresenceStore журнал событий и проекция посещаемости
type PresenceStore interface {
	RecordEntry(ctx context.Context, event *model.PresenceEvent, status model.AttendanceStatus) (*model.ProjectionResult, error)
	RecordExit(ctx context.Context, event *model.PresenceEvent) (*model.ProjectionResult, error)
	ListEvents(ctx context.Context, sessionID uuid.UUID, cursor int64, limit int) ([]*model.PresenceEvent, error)
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error)
	GetRecord(ctx context.Context, sessionID uuid.UUID, participantID string) (*model.AttendanceRecord, error)
	InsertAbsent(ctx context.Context, sessionID uuid.UUID, participantIDs []string, at time.Time) ([]string, error)
}

// EnrollmentStore состав групп, только чтение
type EnrollmentStore interface {
	ListParticipants(ctx context.Context, classRef string) ([]string, error)
}

// Broadcaster рассылка в топик занятия, не блокирует
type Broadcaster interface {
	Publish(sessionID uuid.UUID, msg realtime.Message)
}

// Notifier получатель итогов закрытого занятия
type Notifier interface {
	SessionFinalized(ctx context.Context, summary *model.SessionSummary) error
}

// Matcher внешний сервис распознавания лиц
type Matcher interface {
	Match(ctx context.Context, req model.MatchRequest) (*model.MatchDecision, error)
}

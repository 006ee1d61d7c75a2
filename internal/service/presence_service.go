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

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	// maxClockSkew допустимое расхождение часов: вперёд от часов сервера и назад от начала занятия
	maxClockSkew = 5 * time.Minute
)

// RecordRequest наблюдение входа или выхода участника
type RecordRequest struct {
	EventID       uuid.UUID // ключ идемпотентности, uuid.Nil - сгенерировать
	SessionID     uuid.UUID
	ParticipantID string
	Type          model.EventType
	Source        string
	OccurredAt    time.Time // нулевое значение - время приёма
	Evidence      model.Evidence
}

type PresenceService struct {
	sessions    SessionStore
	presence    PresenceStore
	enrollments EnrollmentStore
	broadcaster Broadcaster
	policy      model.PolicyConfig
	now         func() time.Time
	logger      *zap.Logger
}

func NewPresenceService(
	sessions SessionStore,
	presence PresenceStore,
	enrollments EnrollmentStore,
	broadcaster Broadcaster,
	policy model.PolicyConfig,
	logger *zap.Logger,
) *PresenceService {
	return &PresenceService{
		sessions:    sessions,
		presence:    presence,
		enrollments: enrollments,
		broadcaster: broadcaster,
		policy:      policy,
		now:         time.Now,
		logger:      logger,
	}
}

// Policy правила классификации сервиса
func (s *PresenceService) Policy() model.PolicyConfig {
	return s.policy
}

// Record принимает событие присутствия: журнал, классификация и слияние в проекцию одной транзакцией,
// затем рассылка подписчикам занятия
func (s *PresenceService) Record(ctx context.Context, req RecordRequest) (*model.ProjectionResult, error) {
	event, err := s.buildEvent(req)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, event.SessionID)
	if err != nil {
		return nil, err
	}
	if event.OccurredAt.Before(session.StartedAt.Add(-maxClockSkew)) {
		return nil, fmt.Errorf("%w: occurred_at %s is before session start", ErrValidation, event.OccurredAt.Format(time.RFC3339))
	}

	var result *model.ProjectionResult
	switch event.Type {
	case model.EventTypeEnter:
		status := Resolve(event.OccurredAt, session.StartedAt, s.policy)
		result, err = s.presence.RecordEntry(ctx, event, status)
	case model.EventTypeExit:
		result, err = s.presence.RecordExit(ctx, event)
	}
	if err != nil {
		return nil, mapStoreError(err, event.SessionID)
	}

	if result.Duplicate {
		s.logger.Debug("Duplicate presence event ignored",
			zap.String("event_id", event.ID.String()),
			zap.String("session_id", event.SessionID.String()),
		)
		return result, nil
	}

	fields := []zap.Field{
		zap.String("session_id", event.SessionID.String()),
		zap.String("participant_id", event.ParticipantID),
		zap.String("event_type", string(event.Type)),
		zap.Int64("seq", event.Seq),
	}
	if result.Record != nil {
		fields = append(fields, zap.String("status", string(result.Record.Status)))
	}
	s.logger.Info("Presence event recorded", fields...)

	s.broadcaster.Publish(event.SessionID, realtime.PresenceMessage(result))

	return result, nil
}

func (s *PresenceService) buildEvent(req RecordRequest) (*model.PresenceEvent, error) {
	if err := requireSessionID(req.SessionID); err != nil {
		return nil, err
	}

	participantID, err := normalizeRef("participant_id", req.ParticipantID)
	if err != nil {
		return nil, err
	}

	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrValidation, req.Type)
	}

	source, err := normalizeRef("source", req.Source)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	occurredAt := req.OccurredAt.UTC()
	if req.OccurredAt.IsZero() {
		occurredAt = now
	}
	if occurredAt.After(now.Add(maxClockSkew)) {
		return nil, fmt.Errorf("%w: occurred_at %s is in the future", ErrValidation, occurredAt.Format(time.RFC3339))
	}

	if c := req.Evidence.Confidence; c != nil {
		if *c < 0 || *c > 1 {
			return nil, fmt.Errorf("%w: confidence must be within [0, 1]", ErrValidation)
		}
		if *c < s.policy.ConfidenceThreshold {
			return nil, fmt.Errorf("%w: confidence %.3f is below threshold %.3f", ErrValidation, *c, s.policy.ConfidenceThreshold)
		}
	}

	id := req.EventID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &model.PresenceEvent{
		ID:            id,
		SessionID:     req.SessionID,
		ParticipantID: participantID,
		Type:          req.Type,
		Source:        source,
		OccurredAt:    occurredAt,
		Evidence:      req.Evidence,
	}, nil
}

// openSession проверяет предусловие приёма: занятие существует и открыто.
// Хранилище повторяет проверку внутри транзакции записи
func (s *PresenceService) openSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("%w: session %s is closed", ErrInvalidState, id)
	}
	return session, nil
}

func (s *PresenceService) session(ctx context.Context, id uuid.UUID) (*model.Session, error) {
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

// ListEvents страница журнала событий, от новых к старым. cursor - seq последнего полученного события
func (s *PresenceService) ListEvents(ctx context.Context, sessionID uuid.UUID, cursor int64, limit int) (*model.EventPage, error) {
	if cursor < 0 {
		return nil, fmt.Errorf("%w: cursor must not be negative", ErrValidation)
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}

	events, err := s.presence.ListEvents(ctx, sessionID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	page := &model.EventPage{Events: events}
	if len(events) == limit {
		page.NextCursor = events[len(events)-1].Seq
	}
	if page.Events == nil {
		page.Events = []*model.PresenceEvent{}
	}

	return page, nil
}

// ListRecords текущая проекция посещаемости занятия
func (s *PresenceService) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}

	records, err := s.presence.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if records == nil {
		records = []*model.AttendanceRecord{}
	}

	return records, nil
}

// Delta сравнивает список группы с отмеченными участниками
func (s *PresenceService) Delta(ctx context.Context, sessionID uuid.UUID) (*model.EnrollmentDelta, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enrollments.ListParticipants(ctx, session.ClassRef)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	records, err := s.presence.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	enrolledSet := make(map[string]struct{}, len(enrolled))
	for _, id := range enrolled {
		enrolledSet[id] = struct{}{}
	}

	delta := &model.EnrollmentDelta{
		SessionID:  session.ID,
		ClassRef:   session.ClassRef,
		Enrolled:   append([]string{}, enrolled...),
		Present:    []string{},
		Missing:    []string{},
		Unenrolled: []string{},
	}

	attended := make(map[string]struct{}, len(records))
	for _, record := range records {
		if !record.Attended() {
			continue
		}
		attended[record.ParticipantID] = struct{}{}
		delta.Present = append(delta.Present, record.ParticipantID)
		if _, ok := enrolledSet[record.ParticipantID]; !ok {
			delta.Unenrolled = append(delta.Unenrolled, record.ParticipantID)
		}
	}

	for _, id := range enrolled {
		if _, ok := attended[id]; !ok {
			delta.Missing = append(delta.Missing, id)
		}
	}

	end := s.now()
	if session.EndedAt != nil {
		end = *session.EndedAt
	}
	delta.AbsenceDue = s.policy.AbsenceAfter > 0 && end.Sub(session.StartedAt) > s.policy.AbsenceAfter

	return delta, nil
}

func mapStoreError(err error, sessionID uuid.UUID) error {
	switch {
	case errors.Is(err, base.ErrSessionNotOpen):
		return fmt.Errorf("%w: session %s is closed", ErrInvalidState, sessionID)
	case errors.Is(err, base.ErrSessionMissing):
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	case errors.Is(err, base.ErrEventMismatch):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("record presence: %w", err)
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeEnter EventType = "ENTER"
	EventTypeExit  EventType = "EXIT"
)

// Valid проверяет что тип события известен
func (t EventType) Valid() bool {
	return t == EventTypeEnter || t == EventTypeExit
}

// Evidence подтверждение наблюдения (оценка совпадения, ссылка на снимок, детектор)
type Evidence struct {
	Confidence *float64 `json:"confidence,omitempty"`
	ImageRef   *string  `json:"image_ref,omitempty"`
	DetectorID string   `json:"detector_id,omitempty"`
}

// PresenceEvent неизменяемый факт: источник увидел вход или выход участника
type PresenceEvent struct {
	ID            uuid.UUID `json:"id"`
	Seq           int64     `json:"seq"` // порядок записи в журнал
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Type          EventType `json:"type"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
	Evidence      Evidence  `json:"evidence"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// SameObservation сообщает, описывают ли два события с одним id одно и то же наблюдение
func (e *PresenceEvent) SameObservation(other *PresenceEvent) bool {
	return e.SessionID == other.SessionID &&
		e.ParticipantID == other.ParticipantID &&
		e.Type == other.Type
}

// EventPage страница журнала событий, от новых к старым
type EventPage struct {
	Events     []*PresenceEvent `json:"events"`
	NextCursor int64            `json:"next_cursor,omitempty"` // 0 - страниц больше нет
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
)

// AttendanceRecord материализованный статус участника на занятии
type AttendanceRecord struct {
	SessionID          uuid.UUID        `json:"session_id"`
	ParticipantID      string           `json:"participant_id"`
	Status             AttendanceStatus `json:"status"`
	FirstEntryAt       *time.Time       `json:"first_entry_at"`
	LastExitAt         *time.Time       `json:"last_exit_at"`
	Duration           time.Duration    `json:"duration"`
	EvidenceRef        *string          `json:"evidence_ref,omitempty"`
	EvidenceConfidence *float64         `json:"evidence_confidence,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Attended проверяет что участник был на занятии (вовремя или с опозданием)
func (r *AttendanceRecord) Attended() bool {
	return r != nil && (r.Status == AttendanceStatusPresent || r.Status == AttendanceStatusLate)
}

// ProjectionResult итог применения события к проекции
type ProjectionResult struct {
	Event     *PresenceEvent    `json:"event"`
	Record    *AttendanceRecord `json:"record"`    // nil для EXIT без предшествующего ENTER
	Previous  AttendanceStatus  `json:"previous"`  // пусто, если записи не было
	Duplicate bool              `json:"duplicate"` // событие с таким ID уже было в журнале
}

// StatusChanged изменился ли статус участника после события
func (r *ProjectionResult) StatusChanged() bool {
	return r != nil && !r.Duplicate && r.Record != nil && r.Record.Status != r.Previous
}

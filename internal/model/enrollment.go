package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentDelta сравнение списка группы с фактическим присутствием
type EnrollmentDelta struct {
	SessionID  uuid.UUID `json:"session_id"`
	ClassRef   string    `json:"class_ref"`
	Enrolled   []string  `json:"enrolled"`
	Present    []string  `json:"present"`    // PRESENT или LATE
	Missing    []string  `json:"missing"`    // в группе, но не отмечены
	Unenrolled []string  `json:"unenrolled"` // отмечены, но не в группе
	AbsenceDue bool      `json:"absence_due"`
}

// SessionSummary итог занятия после сверки
type SessionSummary struct {
	Session   *Session  `json:"session"`
	Present   int       `json:"present"`
	Late      int       `json:"late"`
	Absent    int       `json:"absent"`
	Absentees []string  `json:"absentees"`
	CreatedAt time.Time `json:"created_at"`
}

// ReconciliationResult результат одного запуска сверки
type ReconciliationResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Absentees []string  `json:"absentees"` // добавленные этим запуском
	Final     bool      `json:"final"`     // сверка закрытого занятия
}

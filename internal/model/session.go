package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "OPEN"   // Идёт занятие, события принимаются
	SessionStatusClosed SessionStatus = "CLOSED" // Занятие завершено, терминальное состояние
)

// Session одно проведённое занятие группы
type Session struct {
	ID           uuid.UUID     `json:"id"`
	ClassRef     string        `json:"class_ref"`
	SessionDate  time.Time     `json:"session_date"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at"` // nil пока занятие открыто
	Status       SessionStatus `json:"status"`
	ReconciledAt *time.Time    `json:"reconciled_at,omitempty"`
}

// IsOpen проверяет что занятие ещё принимает события
func (s *Session) IsOpen() bool {
	return s != nil && s.Status == SessionStatusOpen
}

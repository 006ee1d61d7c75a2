package realtime

import (
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/google/uuid"
)

type MessageType string

const (
	MessagePresence   MessageType = "presence"   // Принятое событие присутствия
	MessageLifecycle  MessageType = "lifecycle"  // Переход OPEN -> CLOSED
	MessageReconciled MessageType = "reconciled" // Сверка добавила отсутствующих
)

// Message сообщение в топике занятия
type Message struct {
	Seq       int64                   `json:"seq"` // номер в топике, пропуск означает потерю
	Type      MessageType             `json:"type"`
	SessionID uuid.UUID               `json:"session_id"`
	Event     *model.PresenceEvent    `json:"event,omitempty"`
	Record    *model.AttendanceRecord `json:"record,omitempty"`
	Status    model.AttendanceStatus  `json:"status,omitempty"` // только если статус изменился
	Session   *model.Session          `json:"session,omitempty"`
	Absentees []string                `json:"absentees,omitempty"`
	SentAt    time.Time               `json:"sent_at"`
}

// PresenceMessage сообщение о принятом событии
func PresenceMessage(result *model.ProjectionResult) Message {
	msg := Message{
		Type:      MessagePresence,
		SessionID: result.Event.SessionID,
		Event:     result.Event,
		Record:    result.Record,
	}
	if result.StatusChanged() {
		msg.Status = result.Record.Status
	}
	return msg
}

// LifecycleMessage сообщение о смене состояния занятия
func LifecycleMessage(session *model.Session) Message {
	return Message{
		Type:      MessageLifecycle,
		SessionID: session.ID,
		Session:   session,
	}
}

// ReconciledMessage сообщение о результатах сверки
func ReconciledMessage(session *model.Session, absentees []string) Message {
	return Message{
		Type:      MessageReconciled,
		SessionID: session.ID,
		Session:   session,
		Absentees: absentees,
	}
}

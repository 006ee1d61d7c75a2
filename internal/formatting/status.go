package formatting

import "github.com/Freeeeeet/attendance_tracker/internal/model"

// StatusDisplay emoji и текст для отображения статуса
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetAttendanceStatusDisplay возвращает emoji и текст для статуса посещаемости
func GetAttendanceStatusDisplay(status model.AttendanceStatus) StatusDisplay {
	switch status {
	case model.AttendanceStatusPresent:
		return StatusDisplay{Emoji: "✅", Text: "Присутствует"}
	case model.AttendanceStatusLate:
		return StatusDisplay{Emoji: "⏰", Text: "Опоздал"}
	case model.AttendanceStatusAbsent:
		return StatusDisplay{Emoji: "❌", Text: "Отсутствует"}
	default:
		return StatusDisplay{Emoji: "❓", Text: string(status)}
	}
}

// GetSessionStatusDisplay возвращает emoji и текст для статуса занятия
func GetSessionStatusDisplay(status model.SessionStatus) StatusDisplay {
	switch status {
	case model.SessionStatusOpen:
		return StatusDisplay{Emoji: "🟢", Text: "Идёт"}
	case model.SessionStatusClosed:
		return StatusDisplay{Emoji: "🔴", Text: "Завершено"}
	default:
		return StatusDisplay{Emoji: "❓", Text: string(status)}
	}
}

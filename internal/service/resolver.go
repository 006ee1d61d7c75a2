package service

import (
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
)

// Resolve классифицирует вход: LATE, если с начала занятия прошло больше порога, иначе PRESENT.
// Чистая функция, одинаковые аргументы всегда дают одинаковый статус
func Resolve(eventAt, sessionStart time.Time, policy model.PolicyConfig) model.AttendanceStatus {
	if eventAt.Sub(sessionStart) > policy.LateThreshold {
		return model.AttendanceStatusLate
	}
	return model.AttendanceStatusPresent
}

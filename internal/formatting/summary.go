package formatting

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
)

// FormatSummarySubject тема письма с итогами занятия
func FormatSummarySubject(summary *model.SessionSummary) string {
	return fmt.Sprintf("Посещаемость: %s, %s", summary.Session.ClassRef, FormatDate(summary.Session.SessionDate))
}

// FormatSummary итоги закрытого занятия
func FormatSummary(summary *model.SessionSummary, loc *time.Location) string {
	session := summary.Session

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Занятие %s завершено\n\n", session.ClassRef)
	fmt.Fprintf(&sb, "📅 %s, %s", FormatDate(session.SessionDate), FormatTime(session.StartedAt.In(loc)))
	if session.EndedAt != nil {
		fmt.Fprintf(&sb, "-%s", FormatTime(session.EndedAt.In(loc)))
	}
	sb.WriteString("\n\n")

	present := GetAttendanceStatusDisplay(model.AttendanceStatusPresent)
	late := GetAttendanceStatusDisplay(model.AttendanceStatusLate)
	absent := GetAttendanceStatusDisplay(model.AttendanceStatusAbsent)
	fmt.Fprintf(&sb, "%s %s: %d\n", present.Emoji, present.Text, summary.Present)
	fmt.Fprintf(&sb, "%s %s: %d\n", late.Emoji, late.Text, summary.Late)
	fmt.Fprintf(&sb, "%s %s: %d\n", absent.Emoji, absent.Text, summary.Absent)

	if len(summary.Absentees) > 0 {
		fmt.Fprintf(&sb, "\nНе пришли (%d %s):\n", len(summary.Absentees), PluralizeParticipants(len(summary.Absentees)))
		for _, id := range summary.Absentees {
			fmt.Fprintf(&sb, "• %s\n", id)
		}
	}

	return sb.String()
}

// FormatDelta кто из группы ещё не отмечен
func FormatDelta(delta *model.EnrollmentDelta) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 %s: отмечено %d из %d\n", delta.ClassRef, len(delta.Present), len(delta.Enrolled))

	if len(delta.Missing) == 0 {
		sb.WriteString("\n✅ Все участники на месте")
	} else {
		fmt.Fprintf(&sb, "\n❌ Нет на занятии (%d %s):\n", len(delta.Missing), PluralizeParticipants(len(delta.Missing)))
		for _, id := range delta.Missing {
			fmt.Fprintf(&sb, "• %s\n", id)
		}
	}

	if len(delta.Unenrolled) > 0 {
		fmt.Fprintf(&sb, "\n❔ Не из списка группы: %s\n", strings.Join(delta.Unenrolled, ", "))
	}

	if delta.AbsenceDue && len(delta.Missing) > 0 {
		sb.WriteString("\n⚠️ Время ожидания вышло")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// FormatSessionStatus текущее состояние занятия и его проекция
func FormatSessionStatus(session *model.Session, records []*model.AttendanceRecord, loc *time.Location) string {
	display := GetSessionStatusDisplay(session.Status)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s: %s\n", display.Emoji, session.ClassRef, display.Text)
	fmt.Fprintf(&sb, "🕘 Начало: %s\n", FormatDateTime(session.StartedAt.In(loc)))
	if session.EndedAt != nil {
		fmt.Fprintf(&sb, "🏁 Конец: %s (%s)\n", FormatDateTime(session.EndedAt.In(loc)), FormatDuration(session.EndedAt.Sub(session.StartedAt)))
	}

	if len(records) == 0 {
		sb.WriteString("\nПока никто не отмечен")
		return sb.String()
	}

	sb.WriteString("\n")
	for _, record := range records {
		status := GetAttendanceStatusDisplay(record.Status)
		fmt.Fprintf(&sb, "%s %s", status.Emoji, record.ParticipantID)
		if record.FirstEntryAt != nil {
			fmt.Fprintf(&sb, " с %s", FormatTime(record.FirstEntryAt.In(loc)))
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

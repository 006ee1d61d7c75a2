package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/base"
	"github.com/google/uuid"
)

const (
	eventColumns  = `seq, id, session_id, participant_id, event_type, source, occurred_at, confidence, image_ref, detector_id, recorded_at`
	recordColumns = `session_id, participant_id, status, first_entry_at, last_exit_at, duration_ms, evidence_ref, evidence_confidence, updated_at`
)

const (
	evidenceRankExcluded = `CASE WHEN excluded.evidence_ref IS NULL AND excluded.evidence_confidence IS NULL THEN -2 ELSE COALESCE(excluded.evidence_confidence, -1) END`
	evidenceRankStored   = `CASE WHEN attendance_records.evidence_ref IS NULL AND attendance_records.evidence_confidence IS NULL THEN -2 ELSE COALESCE(attendance_records.evidence_confidence, -1) END`
	earlierEntry         = `(attendance_records.first_entry_at IS NULL OR excluded.first_entry_at < attendance_records.first_entry_at)`
)

var upsertEntryQuery = `
	INSERT INTO attendance_records
		(session_id, participant_id, status, first_entry_at, evidence_ref, evidence_confidence, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (session_id, participant_id) DO UPDATE SET
		status = CASE WHEN ` + earlierEntry + ` THEN excluded.status ELSE attendance_records.status END,
		first_entry_at = CASE WHEN ` + earlierEntry + ` THEN excluded.first_entry_at ELSE attendance_records.first_entry_at END,
		duration_ms = CASE
			WHEN attendance_records.last_exit_at IS NOT NULL AND ` + earlierEntry + `
				THEN attendance_records.last_exit_at - excluded.first_entry_at
			ELSE attendance_records.duration_ms
		END,
		evidence_ref = CASE WHEN ` + evidenceRankExcluded + ` > ` + evidenceRankStored + ` THEN excluded.evidence_ref ELSE attendance_records.evidence_ref END,
		evidence_confidence = CASE WHEN ` + evidenceRankExcluded + ` > ` + evidenceRankStored + ` THEN excluded.evidence_confidence ELSE attendance_records.evidence_confidence END,
		updated_at = excluded.updated_at
	RETURNING ` + recordColumns

type PresenceRepository struct {
	store *Store
}

func NewPresenceRepository(store *Store) *PresenceRepository {
	return &PresenceRepository{store: store}
}

// RecordEntry пишет событие ENTER в журнал и сливает его в проекцию одной транзакцией
func (r *PresenceRepository) RecordEntry(ctx context.Context, event *model.PresenceEvent, status model.AttendanceStatus) (*model.ProjectionResult, error) {
	result := &model.ProjectionResult{Event: event}

	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkOpenSession(ctx, tx, event.SessionID); err != nil {
			return err
		}

		inserted, err := insertEvent(ctx, tx, event)
		if err != nil {
			return err
		}

		if !inserted {
			return loadDuplicate(ctx, tx, event, result)
		}

		current, err := getRecord(ctx, tx, event.SessionID, event.ParticipantID)
		if err != nil {
			return err
		}
		if current != nil {
			result.Previous = current.Status
		}

		result.Record, err = scanRecord(tx.QueryRowContext(ctx, upsertEntryQuery,
			event.SessionID,
			event.ParticipantID,
			status,
			toMillis(event.OccurredAt),
			event.Evidence.ImageRef,
			event.Evidence.Confidence,
			toMillis(time.Now()),
		))
		if err != nil {
			return fmt.Errorf("upsert attendance record: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// RecordExit пишет событие EXIT в журнал и продвигает время выхода в проекции
func (r *PresenceRepository) RecordExit(ctx context.Context, event *model.PresenceEvent) (*model.ProjectionResult, error) {
	result := &model.ProjectionResult{Event: event}

	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkOpenSession(ctx, tx, event.SessionID); err != nil {
			return err
		}

		inserted, err := insertEvent(ctx, tx, event)
		if err != nil {
			return err
		}
		if !inserted {
			return loadDuplicate(ctx, tx, event, result)
		}

		exitAt := toMillis(event.OccurredAt)
		record, err := scanRecord(tx.QueryRowContext(ctx, `
			UPDATE attendance_records
			SET last_exit_at = ?,
				duration_ms = ? - first_entry_at,
				updated_at = ?
			WHERE session_id = ? AND participant_id = ?
				AND first_entry_at IS NOT NULL
				AND first_entry_at <= ?
				AND (last_exit_at IS NULL OR last_exit_at < ?)
			RETURNING `+recordColumns,
			exitAt, exitAt, toMillis(time.Now()),
			event.SessionID, event.ParticipantID,
			exitAt, exitAt,
		))
		if err == nil {
			result.Record = record
			result.Previous = record.Status
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update exit: %w", err)
		}

		result.Record, err = getRecord(ctx, tx, event.SessionID, event.ParticipantID)
		if err != nil {
			return err
		}
		if result.Record != nil {
			result.Previous = result.Record.Status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListEvents получает страницу журнала событий занятия, от новых к старым
func (r *PresenceRepository) ListEvents(ctx context.Context, sessionID uuid.UUID, cursor int64, limit int) ([]*model.PresenceEvent, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM presence_events
		WHERE session_id = ? AND (? = 0 OR seq < ?)
		ORDER BY seq DESC
		LIMIT ?
	`, sessionID, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.PresenceEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// ListRecords получает все записи посещаемости занятия
func (r *PresenceRepository) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]*model.AttendanceRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = ?
		ORDER BY participant_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*model.AttendanceRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// GetRecord получает запись участника на занятии
func (r *PresenceRepository) GetRecord(ctx context.Context, sessionID uuid.UUID, participantID string) (*model.AttendanceRecord, error) {
	return getRecord(ctx, r.store.db, sessionID, participantID)
}

// InsertAbsent массово вставляет ABSENT, пропуская уже существующие записи
func (r *PresenceRepository) InsertAbsent(ctx context.Context, sessionID uuid.UUID, participantIDs []string, at time.Time) ([]string, error) {
	if len(participantIDs) == 0 {
		return nil, nil
	}

	var inserted []string
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO attendance_records (session_id, participant_id, status, updated_at)
			VALUES (?, ?, 'ABSENT', ?)
			ON CONFLICT (session_id, participant_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("prepare insert absent: %w", err)
		}
		defer stmt.Close()

		for _, participantID := range participantIDs {
			res, err := stmt.ExecContext(ctx, sessionID, participantID, toMillis(at))
			if err != nil {
				return fmt.Errorf("insert absent: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert absent: %w", err)
			}
			if affected > 0 {
				inserted = append(inserted, participantID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// loadDuplicate отвечает на повтор события: возвращает сохранённое событие и запись,
// если id совпал с тем же наблюдением, иначе ErrEventMismatch
func loadDuplicate(ctx context.Context, tx *sql.Tx, event *model.PresenceEvent, result *model.ProjectionResult) error {
	stored, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM presence_events WHERE id = ?`, event.ID))
	if err != nil {
		return fmt.Errorf("load duplicate event: %w", err)
	}

	if !stored.SameObservation(event) {
		return fmt.Errorf("%w: event %s", base.ErrEventMismatch, event.ID)
	}

	result.Event = stored
	result.Duplicate = true
	result.Record, err = getRecord(ctx, tx, stored.SessionID, stored.ParticipantID)
	if err != nil {
		return err
	}
	if result.Record != nil {
		result.Previous = result.Record.Status
	}
	return nil
}

func checkOpenSession(ctx context.Context, tx *sql.Tx, sessionID uuid.UUID) error {
	var status model.SessionStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return base.ErrSessionMissing
		}
		return fmt.Errorf("check session: %w", err)
	}

	if status != model.SessionStatusOpen {
		return base.ErrSessionNotOpen
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event *model.PresenceEvent) (bool, error) {
	recordedAt := time.Now().UTC()
	err := tx.QueryRowContext(ctx, `
		INSERT INTO presence_events
			(id, session_id, participant_id, event_type, source, occurred_at, confidence, image_ref, detector_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq
	`,
		event.ID,
		event.SessionID,
		event.ParticipantID,
		event.Type,
		event.Source,
		toMillis(event.OccurredAt),
		event.Evidence.Confidence,
		event.Evidence.ImageRef,
		event.Evidence.DetectorID,
		toMillis(recordedAt),
	).Scan(&event.Seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert event: %w", err)
	}

	event.RecordedAt = fromMillis(toMillis(recordedAt))
	return true, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryRower, sessionID uuid.UUID, participantID string) (*model.AttendanceRecord, error) {
	record, err := scanRecord(q.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = ? AND participant_id = ?
	`, sessionID, participantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func scanEvent(row rowScanner) (*model.PresenceEvent, error) {
	var (
		event      model.PresenceEvent
		occurredAt int64
		recordedAt int64
	)
	err := row.Scan(
		&event.Seq,
		&event.ID,
		&event.SessionID,
		&event.ParticipantID,
		&event.Type,
		&event.Source,
		&occurredAt,
		&event.Evidence.Confidence,
		&event.Evidence.ImageRef,
		&event.Evidence.DetectorID,
		&recordedAt,
	)
	if err != nil {
		return nil, err
	}
	event.OccurredAt = fromMillis(occurredAt)
	event.RecordedAt = fromMillis(recordedAt)
	return &event, nil
}

func scanRecord(row rowScanner) (*model.AttendanceRecord, error) {
	var (
		record       model.AttendanceRecord
		firstEntryAt sql.NullInt64
		lastExitAt   sql.NullInt64
		durationMS   int64
		updatedAt    int64
	)
	err := row.Scan(
		&record.SessionID,
		&record.ParticipantID,
		&record.Status,
		&firstEntryAt,
		&lastExitAt,
		&durationMS,
		&record.EvidenceRef,
		&record.EvidenceConfidence,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.FirstEntryAt = timePtr(firstEntryAt)
	record.LastExitAt = timePtr(lastExitAt)
	record.Duration = time.Duration(durationMS) * time.Millisecond
	record.UpdatedAt = fromMillis(updatedAt)
	return &record, nil
}

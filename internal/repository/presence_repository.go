package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	eventColumns  = `seq, id, session_id, participant_id, event_type, source, occurred_at, confidence, image_ref, detector_id, recorded_at`
	recordColumns = `session_id, participant_id, status, first_entry_at, last_exit_at, duration_ms, evidence_ref, evidence_confidence, updated_at`
)

// Ранг доказательства: нет доказательства < без оценки < оценка совпадения
const (
	evidenceRankExcluded = `CASE WHEN EXCLUDED.evidence_ref IS NULL AND EXCLUDED.evidence_confidence IS NULL THEN -2 ELSE COALESCE(EXCLUDED.evidence_confidence, -1) END`
	evidenceRankStored   = `CASE WHEN ar.evidence_ref IS NULL AND ar.evidence_confidence IS NULL THEN -2 ELSE COALESCE(ar.evidence_confidence, -1) END`
)

// insertEntryQuery создаёт запись первого входа, если её ещё нет
var insertEntryQuery = `
	INSERT INTO attendance_records
		(session_id, participant_id, status, first_entry_at, evidence_ref, evidence_confidence, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (session_id, participant_id) DO NOTHING
	RETURNING ` + recordColumns + `
`

// upsertEntryQuery вставляет запись или сливает её с существующей:
// самый ранний вход побеждает, статус берётся от самого раннего входа (ABSENT всегда повышается),
// доказательство заменяется только более уверенным
var upsertEntryQuery = `
	INSERT INTO attendance_records AS ar
		(session_id, participant_id, status, first_entry_at, evidence_ref, evidence_confidence, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	ON CONFLICT (session_id, participant_id) DO UPDATE SET
		status = CASE
			WHEN ar.first_entry_at IS NULL OR EXCLUDED.first_entry_at < ar.first_entry_at THEN EXCLUDED.status
			ELSE ar.status
		END,
		first_entry_at = LEAST(ar.first_entry_at, EXCLUDED.first_entry_at),
		duration_ms = CASE
			WHEN ar.last_exit_at IS NOT NULL
				THEN (EXTRACT(EPOCH FROM (ar.last_exit_at - LEAST(ar.first_entry_at, EXCLUDED.first_entry_at))) * 1000)::BIGINT
			ELSE ar.duration_ms
		END,
		evidence_ref = CASE WHEN ` + evidenceRankExcluded + ` > ` + evidenceRankStored + ` THEN EXCLUDED.evidence_ref ELSE ar.evidence_ref END,
		evidence_confidence = CASE WHEN ` + evidenceRankExcluded + ` > ` + evidenceRankStored + ` THEN EXCLUDED.evidence_confidence ELSE ar.evidence_confidence END,
		updated_at = now()
	RETURNING ` + recordColumns

type PresenceRepository struct {
	*base.Repository
}

func NewPresenceRepository(pool *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{Repository: base.NewRepository(pool)}
}

// RecordEntry пишет событие ENTER в журнал и сливает его в проекцию одной транзакцией
func (r *PresenceRepository) RecordEntry(ctx context.Context, event *model.PresenceEvent, status model.AttendanceStatus) (*model.ProjectionResult, error) {
	result := &model.ProjectionResult{Event: event}

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockOpenSession(ctx, tx, event.SessionID); err != nil {
			return err
		}

		inserted, err := insertEvent(ctx, tx, event)
		if err != nil {
			return err
		}

		if !inserted {
			return loadDuplicate(ctx, tx, event, result)
		}

		args := []any{
			event.SessionID,
			event.ParticipantID,
			status,
			event.OccurredAt,
			event.Evidence.ImageRef,
			event.Evidence.Confidence,
		}

		// Вставка без слияния ждёт конкурентную вставку той же пары и не видит
		// чужую строку как свою: новой запись считается только если вставили мы
		record, err := scanRecord(tx.QueryRow(ctx, insertEntryQuery, args...))
		if err == nil {
			result.Record = record
			return nil
		}
		if !base.IsNotFound(err) {
			return fmt.Errorf("insert attendance record: %w", err)
		}

		// Строка уже зафиксирована: блокируем её, чтобы прочитать статус до слияния
		result.Previous, err = lockRecordStatus(ctx, tx, event.SessionID, event.ParticipantID)
		if err != nil {
			return err
		}

		result.Record, err = scanRecord(tx.QueryRow(ctx, upsertEntryQuery, args...))
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

// RecordExit пишет событие EXIT в журнал и продвигает время выхода в проекции.
// EXIT без предшествующего ENTER остаётся только в журнале
func (r *PresenceRepository) RecordExit(ctx context.Context, event *model.PresenceEvent) (*model.ProjectionResult, error) {
	result := &model.ProjectionResult{Event: event}

	err := r.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockOpenSession(ctx, tx, event.SessionID); err != nil {
			return err
		}

		inserted, err := insertEvent(ctx, tx, event)
		if err != nil {
			return err
		}
		if !inserted {
			return loadDuplicate(ctx, tx, event, result)
		}

		query := `
			UPDATE attendance_records
			SET last_exit_at = $3,
				duration_ms = (EXTRACT(EPOCH FROM ($3 - first_entry_at)) * 1000)::BIGINT,
				updated_at = now()
			WHERE session_id = $1 AND participant_id = $2
				AND first_entry_at IS NOT NULL
				AND first_entry_at <= $3
				AND (last_exit_at IS NULL OR last_exit_at < $3)
			RETURNING ` + recordColumns

		record, err := scanRecord(tx.QueryRow(ctx, query, event.SessionID, event.ParticipantID, event.OccurredAt))
		if err == nil {
			result.Record = record
			result.Previous = record.Status
			return nil
		}
		if !base.IsNotFound(err) {
			return fmt.Errorf("update exit: %w", err)
		}

		// Выход старее сохранённого или записи нет
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

// ListEvents получает страницу журнала событий занятия, от новых к старым.
// cursor = 0 - первая страница, иначе seq последнего события предыдущей страницы
func (r *PresenceRepository) ListEvents(ctx context.Context, sessionID uuid.UUID, cursor int64, limit int) ([]*model.PresenceEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM presence_events
		WHERE session_id = $1 AND ($2::BIGINT = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3
	`

	rows, err := r.Query(ctx, query, sessionID, cursor, limit)
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
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY participant_id ASC
	`

	rows, err := r.Query(ctx, query, sessionID)
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
	return getRecord(ctx, r.Pool(), sessionID, participantID)
}

// InsertAbsent массово вставляет ABSENT, пропуская уже существующие записи.
// Возвращает участников, для которых запись действительно создана
func (r *PresenceRepository) InsertAbsent(ctx context.Context, sessionID uuid.UUID, participantIDs []string, at time.Time) ([]string, error) {
	if len(participantIDs) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO attendance_records (session_id, participant_id, status, updated_at)
		SELECT $1, p, 'ABSENT', $3 FROM unnest($2::TEXT[]) AS p
		ON CONFLICT (session_id, participant_id) DO NOTHING
		RETURNING participant_id
	`

	rows, err := r.Query(ctx, query, sessionID, participantIDs, at)
	if err != nil {
		return nil, fmt.Errorf("insert absent: %w", err)
	}
	defer rows.Close()

	var inserted []string
	for rows.Next() {
		var participantID string
		if err := rows.Scan(&participantID); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		inserted = append(inserted, participantID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate absent: %w", err)
	}

	return inserted, nil
}

// lockOpenSession берёт разделяемую блокировку занятия: закрытие (UPDATE) ждёт
// завершения транзакций, уже принявших событие
func lockOpenSession(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID) error {
	var status model.SessionStatus
	err := tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1 FOR SHARE`, sessionID).Scan(&status)
	if err != nil {
		if base.IsNotFound(err) {
			return base.ErrSessionMissing
		}
		return fmt.Errorf("lock session: %w", err)
	}

	if status != model.SessionStatusOpen {
		return base.ErrSessionNotOpen
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, event *model.PresenceEvent) (bool, error) {
	query := `
		INSERT INTO presence_events
			(id, session_id, participant_id, event_type, source, occurred_at, confidence, image_ref, detector_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq, recorded_at
	`

	err := tx.QueryRow(ctx, query,
		event.ID,
		event.SessionID,
		event.ParticipantID,
		event.Type,
		event.Source,
		event.OccurredAt,
		event.Evidence.Confidence,
		event.Evidence.ImageRef,
		event.Evidence.DetectorID,
	).Scan(&event.Seq, &event.RecordedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert event: %w", err)
	}

	return true, nil
}

// loadDuplicate отвечает на повтор события: возвращает сохранённое событие и запись,
// если id совпал с тем же наблюдением, иначе ErrEventMismatch
func loadDuplicate(ctx context.Context, tx pgx.Tx, event *model.PresenceEvent, result *model.ProjectionResult) error {
	stored, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM presence_events WHERE id = $1`, event.ID))
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

func lockRecordStatus(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, participantID string) (model.AttendanceStatus, error) {
	var status model.AttendanceStatus
	err := tx.QueryRow(ctx, `
		SELECT status FROM attendance_records
		WHERE session_id = $1 AND participant_id = $2
		FOR UPDATE
	`, sessionID, participantID).Scan(&status)
	if err != nil {
		if base.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("lock record: %w", err)
	}
	return status, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRecord(ctx context.Context, q querier, sessionID uuid.UUID, participantID string) (*model.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE session_id = $1 AND participant_id = $2
	`

	record, err := scanRecord(q.QueryRow(ctx, query, sessionID, participantID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func scanEvent(row pgx.Row) (*model.PresenceEvent, error) {
	var event model.PresenceEvent
	err := row.Scan(
		&event.Seq,
		&event.ID,
		&event.SessionID,
		&event.ParticipantID,
		&event.Type,
		&event.Source,
		&event.OccurredAt,
		&event.Evidence.Confidence,
		&event.Evidence.ImageRef,
		&event.Evidence.DetectorID,
		&event.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func scanRecord(row pgx.Row) (*model.AttendanceRecord, error) {
	var (
		record     model.AttendanceRecord
		durationMS int64
	)
	err := row.Scan(
		&record.SessionID,
		&record.ParticipantID,
		&record.Status,
		&record.FirstEntryAt,
		&record.LastExitAt,
		&durationMS,
		&record.EvidenceRef,
		&record.EvidenceConfidence,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Duration = time.Duration(durationMS) * time.Millisecond
	return &record, nil
}

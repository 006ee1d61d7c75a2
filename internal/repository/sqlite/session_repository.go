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

const sessionColumns = `id, class_ref, session_date, started_at, ended_at, status, reconciled_at`

type SessionRepository struct {
	store *Store
}

func NewSessionRepository(store *Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Create открывает новое занятие, второе открытое занятие группы даёт base.ErrDuplicate
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, class_ref, session_date, started_at, status)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.ID,
		session.ClassRef,
		session.SessionDate.Format(dateLayout),
		toMillis(session.StartedAt),
		session.Status,
	)
	if err != nil {
		if isConstraintError(err) {
			return base.ErrDuplicate
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// CloseOpen закрывает открытое занятие группы одним UPDATE
func (r *SessionRepository) CloseOpen(ctx context.Context, classRef string, endedAt time.Time) (*model.Session, error) {
	row := r.store.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET status = 'CLOSED', ended_at = ?
		WHERE class_ref = ? AND status = 'OPEN'
		RETURNING `+sessionColumns,
		toMillis(endedAt), classRef,
	)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, base.ErrNoOpenSession
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	return session, nil
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	row := r.store.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

// GetOpenByClass получает открытое занятие группы
func (r *SessionRepository) GetOpenByClass(ctx context.Context, classRef string) (*model.Session, error) {
	row := r.store.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE class_ref = ? AND status = 'OPEN'`, classRef)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open session: %w", err)
	}

	return session, nil
}

// ListUnreconciled получает закрытые занятия без завершённой сверки
func (r *SessionRepository) ListUnreconciled(ctx context.Context, limit int) ([]*model.Session, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = 'CLOSED' AND reconciled_at IS NULL
		ORDER BY ended_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unreconciled sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// MarkReconciled отмечает что итоговая сверка закрытого занятия выполнена.
// Отметку ставит только первый исполнитель, остальные получают ErrAlreadyReconciled
func (r *SessionRepository) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.store.db.ExecContext(ctx, `
		UPDATE sessions
		SET reconciled_at = ?
		WHERE id = ? AND status = 'CLOSED' AND reconciled_at IS NULL
	`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("mark session reconciled: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark session reconciled: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s", base.ErrAlreadyReconciled, id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		session      model.Session
		sessionDate  string
		startedAt    int64
		endedAt      sql.NullInt64
		reconciledAt sql.NullInt64
	)
	err := row.Scan(
		&session.ID,
		&session.ClassRef,
		&sessionDate,
		&startedAt,
		&endedAt,
		&session.Status,
		&reconciledAt,
	)
	if err != nil {
		return nil, err
	}

	session.SessionDate, err = time.Parse(dateLayout, sessionDate)
	if err != nil {
		return nil, fmt.Errorf("parse session date: %w", err)
	}
	session.StartedAt = fromMillis(startedAt)
	session.EndedAt = timePtr(endedAt)
	session.ReconciledAt = timePtr(reconciledAt)

	return &session, nil
}

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

const sessionColumns = `id, class_ref, session_date, started_at, ended_at, status, reconciled_at`

type SessionRepository struct {
	*base.Repository
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{Repository: base.NewRepository(pool)}
}

// Create открывает новое занятие. Частичный уникальный индекс по (class_ref) WHERE status = 'OPEN'
// не даёт открыть второе занятие для той же группы, в этом случае возвращается base.ErrDuplicate
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, class_ref, session_date, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.Pool().Exec(ctx, query,
		session.ID,
		session.ClassRef,
		session.SessionDate,
		session.StartedAt,
		session.Status,
	)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return base.ErrDuplicate
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// CloseOpen закрывает открытое занятие группы одним UPDATE
func (r *SessionRepository) CloseOpen(ctx context.Context, classRef string, endedAt time.Time) (*model.Session, error) {
	query := `
		UPDATE sessions
		SET status = 'CLOSED', ended_at = $2
		WHERE class_ref = $1 AND status = 'OPEN'
		RETURNING ` + sessionColumns

	session, err := scanSession(r.QueryRow(ctx, query, classRef, endedAt))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, base.ErrNoOpenSession
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	return session, nil
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

// GetOpenByClass получает открытое занятие группы
func (r *SessionRepository) GetOpenByClass(ctx context.Context, classRef string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE class_ref = $1 AND status = 'OPEN'`

	session, err := scanSession(r.QueryRow(ctx, query, classRef))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open session: %w", err)
	}

	return session, nil
}

// ListUnreconciled получает закрытые занятия без завершённой сверки
func (r *SessionRepository) ListUnreconciled(ctx context.Context, limit int) ([]*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = 'CLOSED' AND reconciled_at IS NULL
		ORDER BY ended_at ASC
		LIMIT $1
	`

	rows, err := r.Query(ctx, query, limit)
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
	query := `
		UPDATE sessions
		SET reconciled_at = $2
		WHERE id = $1 AND status = 'CLOSED' AND reconciled_at IS NULL
	`

	affected, err := r.ExecAffected(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark session reconciled: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: session %s", base.ErrAlreadyReconciled, id)
	}

	return nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var session model.Session
	err := row.Scan(
		&session.ID,
		&session.ClassRef,
		&session.SessionDate,
		&session.StartedAt,
		&session.EndedAt,
		&session.Status,
		&session.ReconciledAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

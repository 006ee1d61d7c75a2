package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnrollmentRepository читает состав групп. Сами списки ведёт внешняя система
type EnrollmentRepository struct {
	store *Store
}

func NewEnrollmentRepository(store *Store) *EnrollmentRepository {
	return &EnrollmentRepository{store: store}
}

// ListParticipants получает ID всех участников группы
func (r *EnrollmentRepository) ListParticipants(ctx context.Context, classRef string) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT participant_id
		FROM enrollments
		WHERE class_ref = ?
		ORDER BY participant_id ASC
	`, classRef)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participantIDs []string
	for rows.Next() {
		var participantID string
		if err := rows.Scan(&participantID); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		participantIDs = append(participantIDs, participantID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return participantIDs, nil
}

// Enroll добавляет участников в группу, повторное добавление игнорируется
func (r *EnrollmentRepository) Enroll(ctx context.Context, classRef string, participantIDs ...string) error {
	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, participantID := range participantIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO enrollments (class_ref, participant_id, enrolled_at)
				VALUES (?, ?, ?)
				ON CONFLICT (class_ref, participant_id) DO NOTHING
			`, classRef, participantID, toMillis(time.Now()))
			if err != nil {
				return fmt.Errorf("enroll participant %s: %w", participantID, err)
			}
		}
		return nil
	})
}

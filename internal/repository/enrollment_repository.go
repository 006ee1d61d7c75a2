package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/attendance_tracker/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnrollmentRepository читает состав групп. Сами списки ведёт внешняя система
type EnrollmentRepository struct {
	*base.Repository
}

func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{Repository: base.NewRepository(pool)}
}

// ListParticipants получает ID всех участников группы
func (r *EnrollmentRepository) ListParticipants(ctx context.Context, classRef string) ([]string, error) {
	query := `
		SELECT participant_id
		FROM enrollments
		WHERE class_ref = $1
		ORDER BY participant_id ASC
	`

	rows, err := r.Query(ctx, query, classRef)
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
	query := `
		INSERT INTO enrollments (class_ref, participant_id)
		SELECT $1, p FROM unnest($2::TEXT[]) AS p
		ON CONFLICT (class_ref, participant_id) DO NOTHING
	`

	if _, err := r.ExecAffected(ctx, query, classRef, participantIDs); err != nil {
		return fmt.Errorf("enroll participants: %w", err)
	}

	return nil
}

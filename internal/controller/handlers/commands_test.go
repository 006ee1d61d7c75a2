package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/sqlite"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testHandlers struct {
	*Handlers
	presence    *service.PresenceService
	reconciler  *service.ReconciliationService
	enrollments *sqlite.EnrollmentRepository
}

func newTestHandlers(t *testing.T, policy model.PolicyConfig) *testHandlers {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger := zap.NewNop()
	sessionRepo := sqlite.NewSessionRepository(store)
	presenceRepo := sqlite.NewPresenceRepository(store)
	enrollmentRepo := sqlite.NewEnrollmentRepository(store)
	hub := realtime.NewHub(realtime.DefaultBuffer, logger)

	reconciler := service.NewReconciliationService(sessionRepo, presenceRepo, enrollmentRepo, hub, nil, time.Minute, logger)
	t.Cleanup(reconciler.Wait)
	sessions := service.NewSessionService(sessionRepo, hub, reconciler, time.UTC, logger)
	presence := service.NewPresenceService(sessionRepo, presenceRepo, enrollmentRepo, hub, policy, logger)

	return &testHandlers{
		Handlers:    NewHandlers(sessions, presence, reconciler, []int64{42}, time.UTC, logger),
		presence:    presence,
		reconciler:  reconciler,
		enrollments: enrollmentRepo,
	}
}

func TestCommandArg(t *testing.T) {
	assert.Equal(t, "math-101", commandArg("/open math-101"))
	assert.Equal(t, "math-101", commandArg("/open@attendance_bot   math-101  extra"))
	assert.Empty(t, commandArg("/open"))
}

func TestIsCoordinator(t *testing.T) {
	h := NewHandlers(nil, nil, nil, []int64{1, 2}, nil, zap.NewNop())
	assert.True(t, h.isCoordinator(2))
	assert.False(t, h.isCoordinator(3))
}

func TestOpenAndClose(t *testing.T) {
	h := newTestHandlers(t, model.PolicyConfig{LateThreshold: 15 * time.Minute, AbsenceAfter: time.Hour})
	ctx := context.Background()

	assert.Contains(t, h.openText(ctx, ""), "Укажите группу")
	assert.Contains(t, h.openText(ctx, "math-101"), "Занятие math-101 начато")
	assert.Contains(t, h.openText(ctx, "math-101"), "уже идёт занятие")

	assert.Contains(t, h.closeText(ctx, "math-101"), "Занятие math-101 завершено")
	assert.Contains(t, h.closeText(ctx, "math-101"), "нет открытого занятия")
}

func TestStatusAndMissing(t *testing.T) {
	h := newTestHandlers(t, model.PolicyConfig{LateThreshold: 15 * time.Minute, AbsenceAfter: time.Hour})
	ctx := context.Background()
	require.NoError(t, h.enrollments.Enroll(ctx, "math-101", "s-1", "s-2"))

	assert.Contains(t, h.statusText(ctx, "math-101"), "нет открытого занятия")

	session, err := h.sessionService.Start(ctx, "math-101")
	require.NoError(t, err)
	assert.Contains(t, h.statusText(ctx, "math-101"), "Пока никто не отмечен")

	_, err = h.presence.Record(ctx, service.RecordRequest{
		SessionID:     session.ID,
		ParticipantID: "s-1",
		Type:          model.EventTypeEnter,
		Source:        "manual",
	})
	require.NoError(t, err)

	status := h.statusText(ctx, "math-101")
	assert.Contains(t, status, "🟢 math-101: Идёт")
	assert.Contains(t, status, "✅ s-1")

	missing := h.missingText(ctx, "math-101")
	assert.Contains(t, missing, "отмечено 1 из 2")
	assert.Contains(t, missing, "• s-2")
	assert.NotContains(t, missing, "Отмечено отсутствующими")
}

func TestMissingReconcilesWhenAbsenceDue(t *testing.T) {
	// Нулевое ожидание: любое прошедшее время даёт AbsenceDue
	h := newTestHandlers(t, model.PolicyConfig{LateThreshold: 15 * time.Minute, AbsenceAfter: time.Nanosecond})
	ctx := context.Background()
	require.NoError(t, h.enrollments.Enroll(ctx, "math-101", "s-1", "s-2"))

	session, err := h.sessionService.Start(ctx, "math-101")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	missing := h.missingText(ctx, "math-101")
	assert.Contains(t, missing, "Время ожидания вышло")
	assert.Contains(t, missing, "Отмечено отсутствующими: 2")

	records, err := h.presence.ListRecords(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, model.AttendanceStatusAbsent, r.Status)
	}
}

func TestErrorText(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, nil, zap.NewNop())

	assert.Contains(t, h.errorText(service.ErrConflict, "x"), "уже идёт")
	assert.Contains(t, h.errorText(service.ErrNotFound, "x"), "нет открытого")
	assert.Contains(t, h.errorText(service.ErrValidation, "x"), "Некорректное")
	assert.Contains(t, h.errorText(errors.New("db down"), "x"), "Попробуйте позже")
}

package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/base"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	classStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	testPolicy = model.PolicyConfig{
		LateThreshold:       30 * time.Minute,
		AbsenceAfter:        45 * time.Minute,
		ConfidenceThreshold: 0.4,
	}
)

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []*model.SessionSummary
}

func (n *recordingNotifier) SessionFinalized(_ context.Context, summary *model.SessionSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

func (n *recordingNotifier) all() []*model.SessionSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*model.SessionSummary(nil), n.summaries...)
}

type stubMatcher struct {
	decision *model.MatchDecision
	err      error
	calls    int
}

func (m *stubMatcher) Match(_ context.Context, _ model.MatchRequest) (*model.MatchDecision, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	decision := *m.decision
	return &decision, nil
}

type fixture struct {
	store       *sqlite.Store
	enrollments *sqlite.EnrollmentRepository
	hub         *realtime.Hub
	notifier    *recordingNotifier
	sessions    *SessionService
	presence    *PresenceService
	reconciler  *ReconciliationService
	clock       *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newFixture(t *testing.T) *fixture {
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
	notifier := &recordingNotifier{}
	clock := &testClock{now: classStart}

	reconciler := NewReconciliationService(sessionRepo, presenceRepo, enrollmentRepo, hub, notifier, time.Minute, logger)
	reconciler.now = clock.Now
	sessions := NewSessionService(sessionRepo, hub, reconciler, time.UTC, logger)
	sessions.now = clock.Now
	presence := NewPresenceService(sessionRepo, presenceRepo, enrollmentRepo, hub, testPolicy, logger)
	presence.now = clock.Now

	return &fixture{
		store:       store,
		enrollments: enrollmentRepo,
		hub:         hub,
		notifier:    notifier,
		sessions:    sessions,
		presence:    presence,
		reconciler:  reconciler,
		clock:       clock,
	}
}

func (f *fixture) enter(t *testing.T, sessionID uuid.UUID, participantID string, at time.Time) *model.ProjectionResult {
	t.Helper()

	result, err := f.presence.Record(context.Background(), RecordRequest{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Type:          model.EventTypeEnter,
		Source:        "camera-1",
		OccurredAt:    at,
	})
	require.NoError(t, err)
	return result
}

func receive(t *testing.T, sub *realtime.Subscription) realtime.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return realtime.Message{}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		eventAt time.Time
		want    model.AttendanceStatus
	}{
		{"before start", classStart.Add(-5 * time.Minute), model.AttendanceStatusPresent},
		{"within threshold", classStart.Add(10 * time.Minute), model.AttendanceStatusPresent},
		{"exactly at threshold", classStart.Add(30 * time.Minute), model.AttendanceStatusPresent},
		{"after threshold", classStart.Add(30*time.Minute + time.Millisecond), model.AttendanceStatusLate},
		{"well after threshold", classStart.Add(45 * time.Minute), model.AttendanceStatusLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.eventAt, classStart, testPolicy))
			assert.Equal(t, Resolve(tt.eventAt, classStart, testPolicy), Resolve(tt.eventAt, classStart, testPolicy))
		})
	}
}

func TestStartRejectsSecondOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusOpen, session.Status)
	assert.Equal(t, classStart, session.StartedAt)

	_, err = f.sessions.Start(ctx, "math-101")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.sessions.Start(ctx, "physics-201")
	assert.NoError(t, err)
}

func TestStartConcurrent(t *testing.T) {
	f := newFixture(t)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sessions.Start(context.Background(), "math-101")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, conflicts)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessions.Start(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStopWithoutOpenSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessions.Stop(context.Background(), "math-101")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.sessions.Get(ctx, uuid.Nil)
	assert.ErrorIs(t, err, ErrValidation)

	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)

	open, err := f.sessions.GetOpen(ctx, "math-101")
	require.NoError(t, err)
	assert.Equal(t, session.ID, open.ID)

	_, err = f.sessions.GetOpen(ctx, "physics-201")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordClassifiesEntries(t *testing.T) {
	f := newFixture(t)
	session, err := f.sessions.Start(context.Background(), "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	onTime := f.enter(t, session.ID, "p1", classStart.Add(10*time.Minute))
	require.NotNil(t, onTime.Record)
	assert.Equal(t, model.AttendanceStatusPresent, onTime.Record.Status)
	assert.True(t, onTime.StatusChanged())

	late := f.enter(t, session.ID, "p2", classStart.Add(45*time.Minute))
	require.NotNil(t, late.Record)
	assert.Equal(t, model.AttendanceStatusLate, late.Record.Status)
}

func TestRecordKeepsEarliestEntry(t *testing.T) {
	f := newFixture(t)
	session, err := f.sessions.Start(context.Background(), "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	f.enter(t, session.ID, "p1", classStart.Add(45*time.Minute))
	result := f.enter(t, session.ID, "p1", classStart.Add(5*time.Minute))

	assert.Equal(t, model.AttendanceStatusPresent, result.Record.Status)
	require.NotNil(t, result.Record.FirstEntryAt)
	assert.True(t, result.Record.FirstEntryAt.Equal(classStart.Add(5*time.Minute)))

	again := f.enter(t, session.ID, "p1", classStart.Add(50*time.Minute))
	assert.Equal(t, model.AttendanceStatusPresent, again.Record.Status)
	assert.False(t, again.StatusChanged())
}

func TestRecordConcurrentEntriesConverge(t *testing.T) {
	f := newFixture(t)
	session, err := f.sessions.Start(context.Background(), "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	at := classStart.Add(12 * time.Minute)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.presence.Record(context.Background(), RecordRequest{
				SessionID:     session.ID,
				ParticipantID: "p1",
				Type:          model.EventTypeEnter,
				Source:        "camera-1",
				OccurredAt:    at,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	records, err := f.presence.ListRecords(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.AttendanceStatusPresent, records[0].Status)
}

func TestRecordExit(t *testing.T) {
	f := newFixture(t)
	session, err := f.sessions.Start(context.Background(), "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(2 * time.Hour))
	ctx := context.Background()

	orphan, err := f.presence.Record(ctx, RecordRequest{
		SessionID:     session.ID,
		ParticipantID: "p2",
		Type:          model.EventTypeExit,
		Source:        "camera-1",
		OccurredAt:    classStart.Add(20 * time.Minute),
	})
	require.NoError(t, err)
	assert.Nil(t, orphan.Record)

	f.enter(t, session.ID, "p1", classStart.Add(5*time.Minute))
	result, err := f.presence.Record(ctx, RecordRequest{
		SessionID:     session.ID,
		ParticipantID: "p1",
		Type:          model.EventTypeExit,
		Source:        "camera-1",
		OccurredAt:    classStart.Add(65 * time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Record)
	assert.Equal(t, time.Hour, result.Record.Duration)

	records, err := f.presence.ListRecords(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordDuplicateEventID(t *testing.T) {
	f := newFixture(t)
	session, err := f.sessions.Start(context.Background(), "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))
	sub := f.hub.Subscribe(session.ID)
	defer f.hub.Unsubscribe(sub)

	req := RecordRequest{
		EventID:       uuid.New(),
		SessionID:     session.ID,
		ParticipantID: "p1",
		Type:          model.EventTypeEnter,
		Source:        "camera-1",
		OccurredAt:    classStart.Add(5 * time.Minute),
	}

	first, err := f.presence.Record(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.presence.Record(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	require.NotNil(t, second.Record)
	assert.Equal(t, model.AttendanceStatusPresent, second.Record.Status)

	receive(t, sub)
	select {
	case msg := <-sub.Messages():
		t.Fatalf("duplicate published: %+v", msg)
	default:
	}
}

func TestRecordDuplicateEventIDMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	req := RecordRequest{
		EventID:       uuid.New(),
		SessionID:     session.ID,
		ParticipantID: "p1",
		Type:          model.EventTypeEnter,
		Source:        "camera-1",
		OccurredAt:    classStart.Add(5 * time.Minute),
	}
	first, err := f.presence.Record(ctx, req)
	require.NoError(t, err)

	again, err := f.presence.Record(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Event.Seq, again.Event.Seq)
	assert.NotZero(t, again.Event.Seq)
	assert.False(t, again.Event.RecordedAt.IsZero())

	reused := req
	reused.ParticipantID = "p2"
	_, err = f.presence.Record(ctx, reused)
	require.ErrorIs(t, err, ErrValidation)

	reused = req
	reused.Type = model.EventTypeExit
	_, err = f.presence.Record(ctx, reused)
	require.ErrorIs(t, err, ErrValidation)

	records, err := f.presence.ListRecords(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ParticipantID)
}

func TestRecordRejectsEventLongBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)

	req := RecordRequest{
		SessionID:     session.ID,
		ParticipantID: "p1",
		Type:          model.EventTypeEnter,
		Source:        "camera-1",
		OccurredAt:    classStart.Add(-48 * time.Hour),
	}
	_, err = f.presence.Record(ctx, req)
	require.ErrorIs(t, err, ErrValidation)

	// Небольшое расхождение часов допустимо
	req.OccurredAt = classStart.Add(-time.Minute)
	res, err := f.presence.Record(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.AttendanceStatusPresent, res.Record.Status)
}

func TestRecordPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)

	low := 0.1
	invalid := 1.5
	tests := []struct {
		name string
		req  RecordRequest
		want error
	}{
		{"missing session", RecordRequest{ParticipantID: "p1", Type: model.EventTypeEnter, Source: "cam"}, ErrValidation},
		{"missing participant", RecordRequest{SessionID: session.ID, Type: model.EventTypeEnter, Source: "cam"}, ErrValidation},
		{"unknown type", RecordRequest{SessionID: session.ID, ParticipantID: "p1", Type: "WAVE", Source: "cam"}, ErrValidation},
		{"missing source", RecordRequest{SessionID: session.ID, ParticipantID: "p1", Type: model.EventTypeEnter}, ErrValidation},
		{"future event", RecordRequest{SessionID: session.ID, ParticipantID: "p1", Type: model.EventTypeEnter, Source: "cam", OccurredAt: classStart.Add(time.Hour)}, ErrValidation},
		{"low confidence", RecordRequest{SessionID: session.ID, ParticipantID: "p1", Type: model.EventTypeEnter, Source: "cam", Evidence: model.Evidence{Confidence: &low}}, ErrValidation},
		{"confidence out of range", RecordRequest{SessionID: session.ID, ParticipantID: "p1", Type: model.EventTypeEnter, Source: "cam", Evidence: model.Evidence{Confidence: &invalid}}, ErrValidation},
		{"unknown session", RecordRequest{SessionID: uuid.New(), ParticipantID: "p1", Type: model.EventTypeEnter, Source: "cam"}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.presence.Record(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.sessions.Stop(ctx, "math-101")
	require.NoError(t, err)
	f.reconciler.Wait()

	_, err = f.presence.Record(ctx, RecordRequest{SessionID: session.ID, ParticipantID: "p1", Type: model.EventTypeEnter, Source: "cam"})
	assert.ErrorIs(t, err, ErrInvalidState)

	records, err := f.presence.ListRecords(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordPublishesToSubscribers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	sub := f.hub.Subscribe(session.ID)

	f.enter(t, session.ID, "p1", classStart.Add(40*time.Minute))
	msg := receive(t, sub)
	assert.Equal(t, realtime.MessagePresence, msg.Type)
	assert.Equal(t, model.AttendanceStatusLate, msg.Status)
	assert.Equal(t, "p1", msg.Event.ParticipantID)

	_, err = f.sessions.Stop(ctx, "math-101")
	require.NoError(t, err)
	f.reconciler.Wait()

	lifecycle := receive(t, sub)
	assert.Equal(t, realtime.MessageLifecycle, lifecycle.Type)
	assert.Equal(t, model.SessionStatusClosed, lifecycle.Session.Status)
	assert.Greater(t, lifecycle.Seq, msg.Seq)

	f.hub.Unsubscribe(sub)
	assert.Equal(t, 0, f.hub.TopicCount())
}

func TestStopReconcilesAbsentees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.enrollments.Enroll(ctx, "math-101", "p1", "p2", "p3"))

	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	f.enter(t, session.ID, "p1", classStart.Add(10*time.Minute))
	f.enter(t, session.ID, "p2", classStart.Add(40*time.Minute))

	_, err = f.sessions.Stop(ctx, "math-101")
	require.NoError(t, err)
	f.reconciler.Wait()

	records, err := f.presence.ListRecords(ctx, session.ID)
	require.NoError(t, err)
	statuses := make(map[string]model.AttendanceStatus)
	for _, r := range records {
		statuses[r.ParticipantID] = r.Status
	}
	assert.Equal(t, map[string]model.AttendanceStatus{
		"p1": model.AttendanceStatusPresent,
		"p2": model.AttendanceStatusLate,
		"p3": model.AttendanceStatusAbsent,
	}, statuses)

	stored, err := f.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReconciledAt)

	summaries := f.notifier.all()
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Present)
	assert.Equal(t, 1, summaries[0].Late)
	assert.Equal(t, 1, summaries[0].Absent)
	assert.Equal(t, []string{"p3"}, summaries[0].Absentees)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.enrollments.Enroll(ctx, "math-101", "p1", "p2"))

	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)

	first, err := f.reconciler.Reconcile(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, first.Final)
	assert.ElementsMatch(t, []string{"p1", "p2"}, first.Absentees)

	second, err := f.reconciler.Reconcile(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Absentees)

	records, err := f.presence.ListRecords(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Вход после предварительной сверки снимает ABSENT
	f.clock.Set(classStart.Add(20 * time.Minute))
	result := f.enter(t, session.ID, "p1", classStart.Add(15*time.Minute))
	assert.Equal(t, model.AttendanceStatusPresent, result.Record.Status)
	assert.Equal(t, model.AttendanceStatusAbsent, result.Previous)

	assert.Empty(t, f.notifier.all())
}

func TestReconcileUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.Reconcile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.enrollments.Enroll(ctx, "math-101", "p1"))

	// Без фоновой сверки, как после падения процесса
	f.sessions.reconciler = nil
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	_, err = f.sessions.Stop(ctx, "math-101")
	require.NoError(t, err)

	done, err := f.reconciler.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	record, err := sqlite.NewPresenceRepository(f.store).GetRecord(ctx, session.ID, "p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.AttendanceStatusAbsent, record.Status)

	done, err = f.reconciler.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, done)
	assert.Len(t, f.notifier.all(), 1)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.enrollments.Enroll(ctx, "math-101", "p1"))

	f.sessions.reconciler = nil
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	_, err = f.sessions.Stop(ctx, "math-101")
	require.NoError(t, err)

	// Снимок занятия, прочитанный вторым исполнителем до отметки первого
	stale, err := sqlite.NewSessionRepository(f.store).GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Nil(t, stale.ReconciledAt)

	_, err = f.reconciler.Reconcile(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, f.notifier.all(), 1)

	require.NoError(t, f.reconciler.finalize(ctx, stale))
	assert.Len(t, f.notifier.all(), 1)
}

func TestDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.enrollments.Enroll(ctx, "math-101", "p1", "p2", "p3"))

	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(20 * time.Minute))

	f.enter(t, session.ID, "p1", classStart.Add(5*time.Minute))
	f.enter(t, session.ID, "guest", classStart.Add(6*time.Minute))

	delta, err := f.presence.Delta(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "math-101", delta.ClassRef)
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, delta.Enrolled)
	assert.ElementsMatch(t, []string{"p1", "guest"}, delta.Present)
	assert.ElementsMatch(t, []string{"p2", "p3"}, delta.Missing)
	assert.Equal(t, []string{"guest"}, delta.Unenrolled)
	assert.False(t, delta.AbsenceDue)

	f.clock.Set(classStart.Add(time.Hour))
	delta, err = f.presence.Delta(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, delta.AbsenceDue)
}

func TestListEventsPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(time.Hour))

	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		f.enter(t, session.ID, id, classStart.Add(time.Duration(i)*time.Minute))
	}

	page, err := f.presence.ListEvents(ctx, session.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "p5", page.Events[0].ParticipantID)
	assert.Equal(t, "p4", page.Events[1].ParticipantID)
	require.NotZero(t, page.NextCursor)

	page, err = f.presence.ListEvents(ctx, session.ID, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "p3", page.Events[0].ParticipantID)

	page, err = f.presence.ListEvents(ctx, session.ID, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Zero(t, page.NextCursor)

	_, err = f.presence.ListEvents(ctx, uuid.New(), 0, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.presence.ListEvents(ctx, session.ID, -1, 2)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDetect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.sessions.Start(ctx, "math-101")
	require.NoError(t, err)
	f.clock.Set(classStart.Add(10 * time.Minute))

	t.Run("matched", func(t *testing.T) {
		matcher := &stubMatcher{decision: &model.MatchDecision{
			Matched: true, ParticipantID: "p1", Confidence: 0.82, Score: 0.18, ImageRef: "https://img/1.jpg",
		}}
		svc := NewDetectionService(matcher, f.presence, zap.NewNop())

		result, err := svc.Detect(ctx, DetectRequest{SessionID: session.ID, ImageURL: "https://img/1.jpg", DetectorID: "cam-1"})
		require.NoError(t, err)
		assert.True(t, result.Recorded)
		require.NotNil(t, result.Result.Record)
		assert.Equal(t, model.AttendanceStatusPresent, result.Result.Record.Status)
		require.NotNil(t, result.Result.Record.EvidenceConfidence)
		assert.InDelta(t, 0.82, *result.Result.Record.EvidenceConfidence, 1e-9)
		assert.Equal(t, "cam-1", result.Result.Event.Evidence.DetectorID)
	})

	t.Run("below threshold", func(t *testing.T) {
		matcher := &stubMatcher{decision: &model.MatchDecision{Matched: true, ParticipantID: "p2", Confidence: 0.2}}
		svc := NewDetectionService(matcher, f.presence, zap.NewNop())

		result, err := svc.Detect(ctx, DetectRequest{SessionID: session.ID, ImageData: "aGVsbG8="})
		require.NoError(t, err)
		assert.False(t, result.Recorded)
		assert.False(t, result.Decision.Matched)

		record, err := sqlite.NewPresenceRepository(f.store).GetRecord(ctx, session.ID, "p2")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("matcher failure", func(t *testing.T) {
		matcher := &stubMatcher{err: errors.New("connection refused")}
		svc := NewDetectionService(matcher, f.presence, zap.NewNop())

		_, err := svc.Detect(ctx, DetectRequest{SessionID: session.ID, ImageURL: "https://img/2.jpg"})
		assert.ErrorIs(t, err, ErrExternalService)
	})

	t.Run("missing image", func(t *testing.T) {
		matcher := &stubMatcher{}
		svc := NewDetectionService(matcher, f.presence, zap.NewNop())

		_, err := svc.Detect(ctx, DetectRequest{SessionID: session.ID})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Zero(t, matcher.calls)
	})

	t.Run("closed session skips matcher", func(t *testing.T) {
		_, err := f.sessions.Stop(ctx, "math-101")
		require.NoError(t, err)
		f.reconciler.Wait()

		matcher := &stubMatcher{}
		svc := NewDetectionService(matcher, f.presence, zap.NewNop())

		_, err = svc.Detect(ctx, DetectRequest{SessionID: session.ID, ImageURL: "https://img/3.jpg"})
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Zero(t, matcher.calls)
	})
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "conflict", ErrorCode(ErrConflict))
	assert.Equal(t, "invalid_state", ErrorCode(mapStoreError(base.ErrSessionNotOpen, uuid.Nil)))
	assert.Equal(t, "not_found", ErrorCode(mapStoreError(base.ErrSessionMissing, uuid.Nil)))
	assert.Equal(t, "validation_error", ErrorCode(mapStoreError(base.ErrEventMismatch, uuid.Nil)))
	assert.Equal(t, "internal", ErrorCode(mapStoreError(errors.New("disk full"), uuid.Nil)))
	assert.Equal(t, "internal", ErrorCode(errors.New("boom")))
}

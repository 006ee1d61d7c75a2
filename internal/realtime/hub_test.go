package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func presence(sessionID uuid.UUID, participantID string, seq int64) Message {
	return Message{
		Type: MessagePresence,
		Event: &model.PresenceEvent{
			Seq:           seq,
			SessionID:     sessionID,
			ParticipantID: participantID,
			Type:          model.EventTypeEnter,
		},
	}
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func assertNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message: %+v", msg)
	default:
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sessionID := uuid.New()

	first := hub.Subscribe(sessionID)
	second := hub.Subscribe(sessionID)

	hub.Publish(sessionID, presence(sessionID, "p1", 1))
	hub.Publish(sessionID, presence(sessionID, "p2", 2))

	for _, sub := range []*Subscription{first, second} {
		m1 := receive(t, sub)
		m2 := receive(t, sub)
		assert.Equal(t, int64(1), m1.Seq)
		assert.Equal(t, "p1", m1.Event.ParticipantID)
		assert.Equal(t, int64(2), m2.Seq)
		assert.Equal(t, "p2", m2.Event.ParticipantID)
		assert.Equal(t, sessionID, m1.SessionID)
		assert.False(t, m1.SentAt.IsZero())
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	a, b := uuid.New(), uuid.New()

	subA := hub.Subscribe(a)
	subB := hub.Subscribe(b)

	hub.Publish(a, presence(a, "p1", 1))

	receive(t, subA)
	assertNoMessage(t, subB)
}

func TestJoinDoesNotReplayHistory(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sessionID := uuid.New()

	early := hub.Subscribe(sessionID)
	hub.Publish(sessionID, presence(sessionID, "p1", 1))

	late := hub.Subscribe(sessionID)
	assertNoMessage(t, late)
	receive(t, early)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	hub.Publish(uuid.New(), presence(uuid.New(), "p1", 1))
	assert.Equal(t, 0, hub.TopicCount())
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	sessionID := uuid.New()
	slow := hub.Subscribe(sessionID)

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 10; i++ {
			hub.Publish(sessionID, presence(sessionID, "p1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, int64(8), slow.Dropped())
	assert.Equal(t, int64(1), receive(t, slow).Event.Seq)
	assert.Equal(t, int64(2), receive(t, slow).Event.Seq)
}

func TestStaleEventForParticipantIsSkipped(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sessionID := uuid.New()
	sub := hub.Subscribe(sessionID)

	hub.Publish(sessionID, presence(sessionID, "p1", 5))
	hub.Publish(sessionID, presence(sessionID, "p1", 3))
	hub.Publish(sessionID, presence(sessionID, "p2", 4))

	m1 := receive(t, sub)
	m2 := receive(t, sub)
	assert.Equal(t, int64(5), m1.Event.Seq)
	assert.Equal(t, "p2", m2.Event.ParticipantID)
	// Номера в топике идут без пропусков
	assert.Equal(t, m1.Seq+1, m2.Seq)
	assertNoMessage(t, sub)
}

func TestClosedTopicCollectedWhenEmpty(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sessionID := uuid.New()

	sub := hub.Subscribe(sessionID)
	hub.Unsubscribe(sub)
	// Открытое занятие: пустой топик остаётся
	assert.Equal(t, 1, hub.TopicCount())

	sub = hub.Subscribe(sessionID)
	hub.Publish(sessionID, LifecycleMessage(&model.Session{ID: sessionID, Status: model.SessionStatusClosed}))

	msg := receive(t, sub)
	assert.Equal(t, MessageLifecycle, msg.Type)
	assert.Equal(t, 1, hub.TopicCount())

	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.TopicCount())

	_, ok := <-sub.Messages()
	assert.False(t, ok)
}

func TestMarkClosedWithoutSubscribers(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	sessionID := uuid.New()

	sub := hub.Subscribe(sessionID)
	hub.Unsubscribe(sub)
	hub.MarkClosed(sessionID)
	assert.Equal(t, 0, hub.TopicCount())
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	sessionID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe(sessionID)
			hub.Unsubscribe(sub)
		}()
		go func(i int) {
			defer wg.Done()
			hub.Publish(sessionID, presence(sessionID, uuid.NewString(), int64(i+1)))
		}(i)
	}
	wg.Wait()

	hub.MarkClosed(sessionID)
	assert.Equal(t, 0, hub.TopicCount())
}

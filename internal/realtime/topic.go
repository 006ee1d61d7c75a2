package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type topic struct {
	mu          sync.Mutex
	sessionID   uuid.UUID
	nextSeq     int64
	closed      bool
	subscribers map[*Subscription]struct{}
	// seq последнего опубликованного события по участнику
	lastEvent map[string]int64
}

func newTopic(sessionID uuid.UUID) *topic {
	return &topic{
		sessionID:   sessionID,
		subscribers: make(map[*Subscription]struct{}),
		lastEvent:   make(map[string]int64),
	}
}

func (t *topic) join(sub *Subscription) {
	t.mu.Lock()
	t.subscribers[sub] = struct{}{}
	t.mu.Unlock()
}

func (t *topic) leave(sub *Subscription) (empty bool, closed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscribers[sub]; ok {
		delete(t.subscribers, sub)
		close(sub.ch)
	}
	return len(t.subscribers) == 0, t.closed
}

func (t *topic) markClosed() (removable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return len(t.subscribers) == 0
}

// publish отправляет без блокировки. Событие старее уже опубликованного
// для того же участника отбрасывается, чтобы не нарушить порядок
func (t *topic) publish(msg Message) (delivered int, dropped int, stale bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Event != nil {
		participantID := msg.Event.ParticipantID
		if last, ok := t.lastEvent[participantID]; ok && msg.Event.Seq <= last {
			return 0, 0, true
		}
		t.lastEvent[participantID] = msg.Event.Seq
	}

	t.nextSeq++
	msg.Seq = t.nextSeq

	for sub := range t.subscribers {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	return delivered, dropped, false
}

// Subscription подписка наблюдателя на топик занятия
type Subscription struct {
	ID      uuid.UUID
	topic   *topic
	ch      chan Message
	dropped atomic.Int64
}

// Messages канал сообщений, закрывается при отписке
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// SessionID занятие, на которое оформлена подписка
func (s *Subscription) SessionID() uuid.UUID {
	return s.topic.sessionID
}

// Dropped сколько сообщений потеряно из-за переполнения буфера
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

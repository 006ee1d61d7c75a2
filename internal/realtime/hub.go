// Package realtime рассылка событий занятия подключённым наблюдателям.
//
// Каждое занятие - отдельный топик со своим набором подписчиков. Доставка at-most-once:
// публикация никогда не блокируется, переполненный буфер подписчика теряет сообщение,
// а наблюдатель восстанавливает состояние через запрос журнала.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBuffer = 64

// Hub реестр топиков занятий
type Hub struct {
	mu     sync.Mutex
	topics map[uuid.UUID]*topic
	buffer int
	logger *zap.Logger
	now    func() time.Time
}

// NewHub создаёт реестр, buffer - размер очереди каждого подписчика
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		topics: make(map[uuid.UUID]*topic),
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe подписывает на топик занятия, топик создаётся при первой подписке.
// История не доставляется
func (h *Hub) Subscribe(sessionID uuid.UUID) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[sessionID]
	if !ok {
		t = newTopic(sessionID)
		h.topics[sessionID] = t
	}

	sub := &Subscription{
		ID:    uuid.New(),
		topic: t,
		ch:    make(chan Message, h.buffer),
	}
	t.join(sub)

	h.logger.Debug("Observer subscribed",
		zap.String("session_id", sessionID.String()),
		zap.String("subscription_id", sub.ID.String()),
	)

	return sub
}

// Unsubscribe отписывает и закрывает канал подписки.
// Пустой топик закрытого занятия удаляется
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	empty, closed := sub.topic.leave(sub)
	if !empty || !closed {
		return
	}

	if current, ok := h.topics[sub.topic.sessionID]; ok && current == sub.topic {
		delete(h.topics, sub.topic.sessionID)
		h.logger.Debug("Topic removed", zap.String("session_id", sub.topic.sessionID.String()))
	}
}

// Publish рассылает сообщение подписчикам занятия. Без подписчиков ничего не делает
func (h *Hub) Publish(sessionID uuid.UUID, msg Message) {
	h.mu.Lock()
	t, ok := h.topics[sessionID]
	h.mu.Unlock()

	if !ok {
		return
	}

	msg.SessionID = sessionID
	if msg.SentAt.IsZero() {
		msg.SentAt = h.now().UTC()
	}

	delivered, dropped, stale := t.publish(msg)
	if stale {
		h.logger.Debug("Stale presence message skipped",
			zap.String("session_id", sessionID.String()),
			zap.Int64("event_seq", msg.Event.Seq),
		)
		return
	}

	if dropped > 0 {
		h.logger.Warn("Realtime messages dropped",
			zap.String("session_id", sessionID.String()),
			zap.String("type", string(msg.Type)),
			zap.Int("delivered", delivered),
			zap.Int("dropped", dropped),
		)
	}

	if msg.Type == MessageLifecycle && msg.Session != nil && !msg.Session.IsOpen() {
		h.MarkClosed(sessionID)
	}
}

// MarkClosed помечает топик закрытым, пустой топик удаляется сразу
func (h *Hub) MarkClosed(sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[sessionID]
	if !ok {
		return
	}

	if t.markClosed() {
		delete(h.topics, sessionID)
		h.logger.Debug("Topic removed", zap.String("session_id", sessionID.String()))
	}
}

// TopicCount количество живых топиков
func (h *Hub) TopicCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

package httpapi

import (
	"io"
	"net/http"

	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// Observe GET /api/sessions/{sessionID}/ws
//
// Подписка на топик занятия. История не присылается, наблюдатель берёт её через
// GET /events и дальше следит за seq сообщений.
func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	sub := h.hub.Subscribe(id)
	// Неудачный handshake не вызывает serveObserver, отписка повторно безопасна
	defer h.hub.Unsubscribe(sub)

	// Повторное чтение после подписки: закрытие между проверкой и подпиской
	// иначе оставило бы топик открытым навсегда
	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !session.IsOpen() {
		h.hub.MarkClosed(id)
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.serveObserver(conn, sub)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveObserver(conn *websocket.Conn, sub *realtime.Subscription) {
	defer func() {
		_ = conn.Close()
	}()

	// Клиент ничего не шлёт, чтение нужно только чтобы заметить отключение
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		h.hub.Unsubscribe(sub)
	}()

	for msg := range sub.Messages() {
		if err := websocket.JSON.Send(conn, msg); err != nil {
			h.logger.Debug("Observer write failed",
				zap.String("session_id", sub.SessionID().String()),
				zap.Error(err),
			)
			h.hub.Unsubscribe(sub)
			break
		}
	}

	if dropped := sub.Dropped(); dropped > 0 {
		h.logger.Info("Observer disconnected with dropped messages",
			zap.String("session_id", sub.SessionID().String()),
			zap.Int64("dropped", dropped),
		)
	}
}

// Package httpapi HTTP и WebSocket интерфейс сервиса посещаемости.
package httpapi

import (
	"net/http"

	"github.com/Freeeeeet/attendance_tracker/internal/auth"
	"github.com/Freeeeeet/attendance_tracker/internal/realtime"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Handler содержит все зависимости для обработки запросов
type Handler struct {
	sessions   *service.SessionService
	presence   *service.PresenceService
	reconciler *service.ReconciliationService
	detection  *service.DetectionService
	hub        *realtime.Hub
	verifier   *auth.Verifier
	logger     *zap.Logger
}

// Deps зависимости роутера
type Deps struct {
	Sessions    *service.SessionService
	Presence    *service.PresenceService
	Reconciler  *service.ReconciliationService
	Detection   *service.DetectionService // nil - распознавание не настроено
	Hub         *realtime.Hub
	Verifier    *auth.Verifier
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter собирает роутер со всеми middleware
func NewRouter(deps Deps) http.Handler {
	h := &Handler{
		sessions:   deps.Sessions,
		presence:   deps.Presence,
		reconciler: deps.Reconciler,
		detection:  deps.Detection,
		hub:        deps.Hub,
		verifier:   deps.Verifier,
		logger:     deps.Logger,
	}

	router := mux.NewRouter()
	router.Use(h.logRequests)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)

	// Управление занятиями
	api.HandleFunc("/classes/{classRef}/sessions", h.requireCoordinator(h.StartSession)).Methods(http.MethodPost)
	api.HandleFunc("/classes/{classRef}/sessions/stop", h.requireCoordinator(h.StopSession)).Methods(http.MethodPost)
	api.HandleFunc("/classes/{classRef}/sessions/open", h.GetOpenSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionID}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionID}/reconcile", h.requireCoordinator(h.ReconcileSession)).Methods(http.MethodPost)

	// Присутствие
	api.HandleFunc("/sessions/{sessionID}/events", h.requireRecorder(h.RecordEvent)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionID}/events", h.ListEvents).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionID}/detections", h.requireRecorder(h.Detect)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionID}/attendance", h.ListAttendance).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sessionID}/delta", h.GetDelta).Methods(http.MethodGet)

	// Наблюдение в реальном времени
	api.HandleFunc("/sessions/{sessionID}/ws", h.Observe).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusNotFound, "not_found", "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}

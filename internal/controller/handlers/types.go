package handlers

import (
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	sessionService   *service.SessionService
	presenceService  *service.PresenceService
	reconcileService *service.ReconciliationService
	coordinators     map[int64]struct{}
	location         *time.Location
	logger           *zap.Logger
}

// NewHandlers создаёт новый обработчик команд.
// coordinatorIDs - Telegram ID пользователей, которым разрешено управлять занятиями
func NewHandlers(
	sessionService *service.SessionService,
	presenceService *service.PresenceService,
	reconcileService *service.ReconciliationService,
	coordinatorIDs []int64,
	location *time.Location,
	logger *zap.Logger,
) *Handlers {
	coordinators := make(map[int64]struct{}, len(coordinatorIDs))
	for _, id := range coordinatorIDs {
		coordinators[id] = struct{}{}
	}
	if location == nil {
		location = time.UTC
	}

	return &Handlers{
		sessionService:   sessionService,
		presenceService:  presenceService,
		reconcileService: reconcileService,
		coordinators:     coordinators,
		location:         location,
		logger:           logger,
	}
}

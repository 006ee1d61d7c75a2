package model

type Role string

const (
	RoleCoordinator Role = "coordinator" // Преподаватель, управляет занятиями
	RoleDetector    Role = "detector"    // Сервисный аккаунт камеры/детектора
	RoleParticipant Role = "participant"
)

// Principal проверенный внешним сервисом пользователь
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanManageSessions может ли открывать, закрывать и сверять занятия
func (p Principal) CanManageSessions() bool {
	return p.Role == RoleCoordinator
}

// CanRecord может ли записывать события присутствия
func (p Principal) CanRecord() bool {
	return p.Role == RoleCoordinator || p.Role == RoleDetector
}

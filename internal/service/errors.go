package service

import "errors"

// Ошибки сервисов. Вызывающая сторона сама решает, повторять ли запрос
var (
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrValidation      = errors.New("validation error")
	ErrExternalService = errors.New("external service error")
	ErrForbidden       = errors.New("forbidden")
)

// ErrorCode возвращает машинный код ошибки для ответа клиенту
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrExternalService):
		return "external_service_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}

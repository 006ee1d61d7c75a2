package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxRefLength = 128

func normalizeRef(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if len(value) > maxRefLength {
		return "", fmt.Errorf("%w: %s is longer than %d characters", ErrValidation, field, maxRefLength)
	}
	return value, nil
}

func requireSessionID(id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	return nil
}

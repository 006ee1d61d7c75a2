// Package auth проверяет bearer-токены, выпущенные внешним сервисом учётных записей.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownRole  = errors.New("unknown role")
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier проверяет подпись HS256 и срок действия токена
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify разбирает токен и возвращает проверенного пользователя
func (v *Verifier) Verify(tokenString string) (model.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return model.Principal{}, fmt.Errorf("%w: user_id is empty", ErrInvalidToken)
	}

	role := model.Role(claims.Role)
	switch role {
	case model.RoleCoordinator, model.RoleDetector, model.RoleParticipant:
	default:
		return model.Principal{}, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}

	return model.Principal{ID: claims.UserID, Role: role}, nil
}

// Issue выпускает токен с тем же секретом. Используется для сервисных аккаунтов детекторов и в тестах
func (v *Verifier) Issue(principal model.Principal, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: principal.ID,
		Role:   string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

package model

import "github.com/google/uuid"

// MatchRequest запрос к сервису распознавания: ссылка на снимок или сам снимок в base64
type MatchRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	ImageURL  string    `json:"image_url,omitempty"`
	ImageData string    `json:"image_data,omitempty"`
}

// MatchDecision ответ сервиса распознавания
type MatchDecision struct {
	Matched       bool    `json:"matched"`
	ParticipantID string  `json:"participant_id,omitempty"`
	Confidence    float64 `json:"confidence"`
	Score         float64 `json:"score"`
	ImageRef      string  `json:"image_ref,omitempty"`
}

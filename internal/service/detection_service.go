package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DetectRequest снимок с камеры для распознавания
type DetectRequest struct {
	SessionID  uuid.UUID
	ImageURL   string
	ImageData  string
	Source     string
	DetectorID string
	Type       model.EventType // пусто - ENTER
}

// DetectResult решение сервиса распознавания и, при совпадении, результат записи
type DetectResult struct {
	Decision *model.MatchDecision   `json:"decision"`
	Recorded bool                   `json:"recorded"`
	Result   *model.ProjectionResult `json:"result,omitempty"`
}

type DetectionService struct {
	matcher  Matcher
	presence *PresenceService
	logger   *zap.Logger
}

func NewDetectionService(matcher Matcher, presence *PresenceService, logger *zap.Logger) *DetectionService {
	return &DetectionService{
		matcher:  matcher,
		presence: presence,
		logger:   logger,
	}
}

// Detect отправляет снимок на распознавание и записывает событие, если участник узнан уверенно.
// Ошибка внешнего сервиса отклоняет событие целиком
func (s *DetectionService) Detect(ctx context.Context, req DetectRequest) (*DetectResult, error) {
	if s.matcher == nil {
		return nil, fmt.Errorf("%w: matcher is not configured", ErrExternalService)
	}

	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.ImageURL == "" && req.ImageData == "" {
		return nil, fmt.Errorf("%w: image_url or image_data is required", ErrValidation)
	}
	if req.Type == "" {
		req.Type = model.EventTypeEnter
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrValidation, req.Type)
	}

	// Закрытое занятие не стоит запроса к сервису распознавания
	if _, err := s.presence.openSession(ctx, req.SessionID); err != nil {
		return nil, err
	}

	decision, err := s.matcher.Match(ctx, model.MatchRequest{
		SessionID: req.SessionID,
		ImageURL:  req.ImageURL,
		ImageData: req.ImageData,
	})
	if err != nil {
		if errors.Is(err, ErrExternalService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	threshold := s.presence.Policy().ConfidenceThreshold
	if !decision.Matched || decision.ParticipantID == "" || decision.Confidence < threshold {
		s.logger.Info("Detection not matched",
			zap.String("session_id", req.SessionID.String()),
			zap.Bool("matched", decision.Matched),
			zap.Float64("confidence", decision.Confidence),
		)
		decision.Matched = false
		return &DetectResult{Decision: decision}, nil
	}

	evidence := model.Evidence{DetectorID: req.DetectorID}
	confidence := decision.Confidence
	evidence.Confidence = &confidence
	if decision.ImageRef != "" {
		ref := decision.ImageRef
		evidence.ImageRef = &ref
	}

	source := req.Source
	if strings.TrimSpace(source) == "" {
		source = "detector"
	}

	result, err := s.presence.Record(ctx, RecordRequest{
		SessionID:     req.SessionID,
		ParticipantID: decision.ParticipantID,
		Type:          req.Type,
		Source:        source,
		Evidence:      evidence,
	})
	if err != nil {
		return nil, err
	}

	return &DetectResult{Decision: decision, Recorded: true, Result: result}, nil
}

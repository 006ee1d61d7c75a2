// Package matcher клиент внешнего сервиса распознавания лиц (POST /match).
package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

type matchRequest struct {
	ImageURL  string `json:"image_url,omitempty"`
	ImageData string `json:"image_data,omitempty"`
	SessionID string `json:"session_id"`
}

type matchResponse struct {
	Matched    bool     `json:"matched"`
	StudentID  *string  `json:"student_id"`
	Score      *float64 `json:"score"`
	Confidence *float64 `json:"confidence"`
	ImageURL   *string  `json:"image_url"`
}

// Client ходит в сервис распознавания по HTTP
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Match отправляет снимок на сопоставление. Любой сбой сервиса возвращается как service.ErrExternalService
func (c *Client) Match(ctx context.Context, req model.MatchRequest) (*model.MatchDecision, error) {
	body, err := json.Marshal(matchRequest{
		ImageURL:  req.ImageURL,
		ImageData: req.ImageData,
		SessionID: req.SessionID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode match request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/match", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build match request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: match request: %v", service.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: match returned %s: %s", service.ErrExternalService, resp.Status, strings.TrimSpace(string(detail)))
	}

	var decoded matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode match response: %v", service.ErrExternalService, err)
	}

	decision := &model.MatchDecision{Matched: decoded.Matched}
	if decoded.StudentID != nil {
		decision.ParticipantID = *decoded.StudentID
	}
	if decoded.Confidence != nil {
		decision.Confidence = *decoded.Confidence
	}
	if decoded.Score != nil {
		decision.Score = *decoded.Score
	}
	if decoded.ImageURL != nil {
		decision.ImageRef = *decoded.ImageURL
	} else if req.ImageURL != "" {
		decision.ImageRef = req.ImageURL
	}

	c.logger.Debug("Match completed",
		zap.String("session_id", req.SessionID.String()),
		zap.Bool("matched", decision.Matched),
		zap.Float64("confidence", decision.Confidence),
		zap.Duration("duration", time.Since(started)),
	)

	return decision, nil
}

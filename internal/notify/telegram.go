package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/formatting"
	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// MessageSender часть *bot.Bot, нужная для отправки сообщений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram отправляет итоги в чаты координаторов
type Telegram struct {
	sender   MessageSender
	chatIDs  []int64
	location *time.Location
	logger   *zap.Logger
}

func NewTelegram(sender MessageSender, chatIDs []int64, location *time.Location, logger *zap.Logger) *Telegram {
	if location == nil {
		location = time.UTC
	}
	return &Telegram{
		sender:   sender,
		chatIDs:  chatIDs,
		location: location,
		logger:   logger,
	}
}

func (t *Telegram) SessionFinalized(ctx context.Context, summary *model.SessionSummary) error {
	text := formatting.FormatSummary(summary, t.location)

	var errs []error
	for _, chatID := range t.chatIDs {
		_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("send to chat %d: %w", chatID, err))
			continue
		}
		t.logger.Debug("Summary sent to telegram",
			zap.Int64("chat_id", chatID),
			zap.String("session_id", summary.Session.ID.String()),
		)
	}

	return errors.Join(errs...)
}

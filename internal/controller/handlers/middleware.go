package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// isCoordinator проверяет что пользователь в списке координаторов
func (h *Handlers) isCoordinator(telegramID int64) bool {
	_, ok := h.coordinators[telegramID]
	return ok
}

// requireCoordinator проверяет что команду прислал координатор
func (h *Handlers) requireCoordinator(ctx context.Context, b *bot.Bot, update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}

	if !h.isCoordinator(update.Message.From.ID) {
		h.logger.Warn("Command from non-coordinator",
			zap.Int64("telegram_id", update.Message.From.ID),
			zap.String("text", update.Message.Text),
		)
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Эта команда доступна только координаторам.")
		return false
	}

	return true
}

// commandArg возвращает аргумент команды: "/open math-101" -> "math-101"
func commandArg(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

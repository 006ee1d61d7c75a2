package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/attendance_tracker/internal/formatting"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const helpText = "📚 Справка по командам:\n\n" +
	"/open <группа> - Начать занятие\n" +
	"/close <группа> - Завершить занятие\n" +
	"/missing <группа> - Кого нет на занятии\n" +
	"/status <группа> - Состояние занятия\n" +
	"/help - Показать эту справку"

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	text := fmt.Sprintf("👋 Привет, %s!\n\nЭто бот учёта посещаемости.\n\n", update.Message.From.FirstName)
	if h.isCoordinator(update.Message.From.ID) {
		text += helpText
	} else {
		text += fmt.Sprintf("Ваш Telegram ID: %d. Передайте его администратору, чтобы получить доступ координатора.", update.Message.From.ID)
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, text)
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleOpen обрабатывает команду /open <группа>
func (h *Handlers) HandleOpen(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireCoordinator(ctx, b, update) {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, h.openText(ctx, commandArg(update.Message.Text)))
}

// HandleClose обрабатывает команду /close <группа>
func (h *Handlers) HandleClose(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireCoordinator(ctx, b, update) {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, h.closeText(ctx, commandArg(update.Message.Text)))
}

// HandleMissing обрабатывает команду /missing <группа>
func (h *Handlers) HandleMissing(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireCoordinator(ctx, b, update) {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, h.missingText(ctx, commandArg(update.Message.Text)))
}

// HandleStatus обрабатывает команду /status <группа>
func (h *Handlers) HandleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !h.requireCoordinator(ctx, b, update) {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, h.statusText(ctx, commandArg(update.Message.Text)))
}

func (h *Handlers) openText(ctx context.Context, classRef string) string {
	if classRef == "" {
		return "❌ Укажите группу: /open <группа>"
	}

	session, err := h.sessionService.Start(ctx, classRef)
	if err != nil {
		return h.errorText(err, "start session")
	}

	return fmt.Sprintf("🟢 Занятие %s начато в %s", session.ClassRef, formatting.FormatTime(session.StartedAt.In(h.location)))
}

func (h *Handlers) closeText(ctx context.Context, classRef string) string {
	if classRef == "" {
		return "❌ Укажите группу: /close <группа>"
	}

	session, err := h.sessionService.Stop(ctx, classRef)
	if err != nil {
		return h.errorText(err, "stop session")
	}

	return fmt.Sprintf("🔴 Занятие %s завершено (%s).\nИтоги придут после сверки.",
		session.ClassRef, formatting.FormatDuration(session.EndedAt.Sub(session.StartedAt)))
}

// missingText сверяет открытое занятие и показывает кого нет
func (h *Handlers) missingText(ctx context.Context, classRef string) string {
	if classRef == "" {
		return "❌ Укажите группу: /missing <группа>"
	}

	session, err := h.sessionService.GetOpen(ctx, classRef)
	if err != nil {
		return h.errorText(err, "get open session")
	}

	delta, err := h.presenceService.Delta(ctx, session.ID)
	if err != nil {
		return h.errorText(err, "get delta")
	}

	text := formatting.FormatDelta(delta)
	if !delta.AbsenceDue || len(delta.Missing) == 0 {
		return text
	}

	// Время ожидания вышло: отмечаем отсутствующих, не дожидаясь закрытия
	result, err := h.reconcileService.Reconcile(ctx, session.ID)
	if err != nil {
		h.logger.Error("Failed to reconcile from telegram",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return text
	}
	if len(result.Absentees) > 0 {
		text += fmt.Sprintf("\n📝 Отмечено отсутствующими: %d", len(result.Absentees))
	}
	return text
}

func (h *Handlers) statusText(ctx context.Context, classRef string) string {
	if classRef == "" {
		return "❌ Укажите группу: /status <группа>"
	}

	session, err := h.sessionService.GetOpen(ctx, classRef)
	if err != nil {
		return h.errorText(err, "get open session")
	}

	records, err := h.presenceService.ListRecords(ctx, session.ID)
	if err != nil {
		return h.errorText(err, "list records")
	}

	return formatting.FormatSessionStatus(session, records, h.location)
}

// errorText переводит ошибку сервиса в ответ пользователю
func (h *Handlers) errorText(err error, action string) string {
	switch {
	case errors.Is(err, service.ErrConflict):
		return "⚠️ У этой группы уже идёт занятие."
	case errors.Is(err, service.ErrNotFound):
		return "⚠️ У этой группы нет открытого занятия."
	case errors.Is(err, service.ErrValidation):
		return "❌ Некорректное название группы."
	default:
		h.logger.Error("Telegram command failed", zap.String("action", action), zap.Error(err))
		return "❌ Произошла ошибка. Попробуйте позже."
	}
}

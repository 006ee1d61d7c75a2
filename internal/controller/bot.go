package controller

import (
	"context"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/controller/handlers"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// BotController команды координаторов в Telegram
type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	sessionService *service.SessionService,
	presenceService *service.PresenceService,
	reconcileService *service.ReconciliationService,
	coordinatorIDs []int64,
	location *time.Location,
	logger *zap.Logger,
) *BotController {
	cmdHandlers := handlers.NewHandlers(
		sessionService,
		presenceService,
		reconcileService,
		coordinatorIDs,
		location,
		logger,
	)

	return &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.handlers.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handlers.HandleHelp)

	// Команды координаторов, аргумент - группа
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/open", bot.MatchTypePrefix, c.handlers.HandleOpen)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/close", bot.MatchTypePrefix, c.handlers.HandleClose)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/missing", bot.MatchTypePrefix, c.handlers.HandleMissing)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, c.handlers.HandleStatus)

	// Устанавливаем меню команд
	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "open", Description: "🟢 Начать занятие группы"},
		{Command: "close", Description: "🔴 Завершить занятие группы"},
		{Command: "missing", Description: "❌ Кого нет на занятии"},
		{Command: "status", Description: "📋 Состояние занятия"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота, блокируется до отмены контекста
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}

package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Freeeeeet/attendance_tracker/internal/formatting"
	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// MailSender часть *gomail.Dialer, нужная для отправки писем
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig параметры почтового сервера
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Email отправляет итоги занятия письмом
type Email struct {
	sender     MailSender
	from       string
	recipients []string
	location   *time.Location
	logger     *zap.Logger
}

// NewSMTPDialer создаёт отправителя gomail по настройкам SMTP
func NewSMTPDialer(cfg SMTPConfig) *gomail.Dialer {
	return gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
}

func NewEmail(sender MailSender, from string, recipients []string, location *time.Location, logger *zap.Logger) *Email {
	if location == nil {
		location = time.UTC
	}
	return &Email{
		sender:     sender,
		from:       from,
		recipients: recipients,
		location:   location,
		logger:     logger,
	}
}

func (e *Email) SessionFinalized(_ context.Context, summary *model.SessionSummary) error {
	text := formatting.FormatSummary(summary, e.location)

	mailer := gomail.NewMessage()
	mailer.SetHeader("From", e.from)
	mailer.SetHeader("To", e.recipients...)
	mailer.SetHeader("Subject", formatting.FormatSummarySubject(summary))
	mailer.SetBody("text/plain", text)
	mailer.AddAlternative("text/html", "<pre>"+html.EscapeString(text)+"</pre>")

	if err := e.sender.DialAndSend(mailer); err != nil {
		return fmt.Errorf("send summary email: %w", err)
	}

	e.logger.Info("Summary email sent",
		zap.String("session_id", summary.Session.ID.String()),
		zap.String("to", strings.Join(e.recipients, ",")),
	)
	return nil
}

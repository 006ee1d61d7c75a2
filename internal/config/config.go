package config

import (
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/attendance_tracker/internal/model"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBDSN      string `env:"DB_DSN"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"attendance.db"`

	JWTSecret   string   `env:"JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	MLServiceURL   string        `env:"ML_SERVICE_URL"`
	MLMatchTimeout time.Duration `env:"ML_MATCH_TIMEOUT" envDefault:"10s"`

	LateThreshold       time.Duration `env:"LATE_THRESHOLD" envDefault:"15m"`
	AbsenceAfter        time.Duration `env:"ABSENCE_AFTER" envDefault:"30m"`
	ConfidenceThreshold float64       `env:"CONFIDENCE_THRESHOLD" envDefault:"0.4"`
	Timezone            string        `env:"TIMEZONE" envDefault:"UTC"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileTimeout  time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"30s"`
	SubscriberBuffer  int           `env:"SUBSCRIBER_BUFFER" envDefault:"64"`

	TelegramToken          string  `env:"TELEGRAM_TOKEN"`
	CoordinatorTelegramIDs []int64 `env:"COORDINATOR_TELEGRAM_IDS" envSeparator:","`

	SMTPHost     string   `env:"SMTP_HOST"`
	SMTPPort     int      `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string   `env:"SMTP_USERNAME"`
	SMTPPassword string   `env:"SMTP_PASSWORD"`
	SMTPFrom     string   `env:"SMTP_FROM"`
	ReportEmails []string `env:"REPORT_EMAILS" envSeparator:","`

	location *time.Location
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return Parse()
}

// Parse читает конфигурацию из переменных окружения и проверяет её
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}

	if c.LateThreshold < 0 || c.AbsenceAfter < 0 {
		return fmt.Errorf("LATE_THRESHOLD and ABSENCE_AFTER must not be negative")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0, 1]")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc

	return nil
}

// Policy правила классификации посещаемости
func (c *Config) Policy() model.PolicyConfig {
	return model.PolicyConfig{
		LateThreshold:       c.LateThreshold,
		AbsenceAfter:        c.AbsenceAfter,
		ConfidenceThreshold: c.ConfidenceThreshold,
	}
}

// Location часовой пояс для дат занятий и сообщений
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// TelegramEnabled настроен ли бот координаторов
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// EmailEnabled настроена ли отправка отчётов почтой
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && len(c.ReportEmails) > 0
}

// MatcherEnabled настроен ли сервис распознавания
func (c *Config) MatcherEnabled() bool {
	return c.MLServiceURL != ""
}

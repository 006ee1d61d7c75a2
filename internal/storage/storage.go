// Package storage открывает хранилище по DB_DRIVER: PostgreSQL через пул pgx или локальный файл SQLite.
package storage

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/attendance_tracker/internal/app"
	"github.com/Freeeeeet/attendance_tracker/internal/config"
	"github.com/Freeeeeet/attendance_tracker/internal/repository"
	"github.com/Freeeeeet/attendance_tracker/internal/repository/sqlite"
	"github.com/Freeeeeet/attendance_tracker/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Enroller загрузка состава групп
type Enroller interface {
	service.EnrollmentStore
	Enroll(ctx context.Context, classRef string, participantIDs ...string) error
}

// Storage репозитории выбранного драйвера
type Storage struct {
	Sessions    service.SessionStore
	Presence    service.PresenceStore
	Enrollments Enroller

	close func()
}

// Open подключается к базе и применяет миграции
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg.DBDSN, logger)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func openPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	version, err := migrator.Version(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Connected to PostgreSQL", zap.Int64("schema_version", version))

	return &Storage{
		Sessions:    repository.NewSessionRepository(pool),
		Presence:    repository.NewPresenceRepository(pool),
		Enrollments: repository.NewEnrollmentRepository(pool),
		close:       pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, path string, logger *zap.Logger) (*Storage, error) {
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	logger.Info("Opened SQLite database", zap.String("path", path))

	return &Storage{
		Sessions:    sqlite.NewSessionRepository(store),
		Presence:    sqlite.NewPresenceRepository(store),
		Enrollments: sqlite.NewEnrollmentRepository(store),
		close: func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close SQLite database", zap.Error(err))
			}
		},
	}, nil
}

// Close закрывает соединения
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

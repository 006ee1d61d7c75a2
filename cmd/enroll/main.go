// Команда enroll загружает состав группы в хранилище:
//
//	enroll -class math-101 s-1 s-2 s-3
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/Freeeeeet/attendance_tracker/internal/app"
	"github.com/Freeeeeet/attendance_tracker/internal/config"
	"github.com/Freeeeeet/attendance_tracker/internal/storage"
	"go.uber.org/zap"
)

func main() {
	classRef := flag.String("class", "", "class reference")
	flag.Parse()

	if strings.TrimSpace(*classRef) == "" || flag.NArg() == 0 {
		log.Fatal("usage: enroll -class <class_ref> <participant_id>...")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	if err := store.Enrollments.Enroll(ctx, *classRef, flag.Args()...); err != nil {
		logger.Fatal("Failed to enroll participants", zap.Error(err))
	}

	logger.Info("Participants enrolled",
		zap.String("class_ref", *classRef),
		zap.Int("count", flag.NArg()),
	)
}

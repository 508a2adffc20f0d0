package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivmel/modelbooth-bot/internal/config"
	"github.com/ivmel/modelbooth-bot/internal/kie"
	"github.com/ivmel/modelbooth-bot/internal/server"
	"github.com/ivmel/modelbooth-bot/internal/service"
	"github.com/ivmel/modelbooth-bot/internal/session"
	"github.com/ivmel/modelbooth-bot/internal/source"
	"github.com/ivmel/modelbooth-bot/internal/storage"
	"github.com/ivmel/modelbooth-bot/internal/store"
	"github.com/ivmel/modelbooth-bot/internal/telegram"
	"github.com/ivmel/modelbooth-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("data dir: %v", err)
	}
	registry, err := store.OpenRegistry(filepath.Join(cfg.DataDir, "users.json"))
	if err != nil {
		log.Fatalf("open registry: %v", err)
	}
	ledger, err := store.OpenLedger(filepath.Join(cfg.DataDir, "usage.json"))
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	editClient := kie.NewClient(cfg, logr)
	fetcher := source.NewFetcher(cfg, logr)
	sessions := session.NewStore()

	adminID := telegram.ChatIDString(cfg.AdminChatID)
	access := service.NewAccessService(registry, adminID)
	generation := service.NewGenerationService(logr, access, ledger, sessions, editClient, cfg.DailyLimit)

	var uploads telegram.ImageStorage
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploads = uploader
	} else {
		logr.Info("s3 not configured, using telegram file urls directly")
	}

	bot := telegram.NewBot(cfg, botAPI, logr, access, generation, fetcher, sessions, uploads)

	if cfg.PublicBaseURL != "" {
		// A failed registration is not fatal; the operator can point the
		// webhook at us manually and the server will still accept updates.
		if err := bot.RegisterWebhook(cfg.PublicBaseURL); err != nil {
			logr.Error("webhook registration failed", "err", err)
		}
	} else {
		logr.Warn("PUBLIC_BASE_URL not set, skipping webhook registration")
	}

	srv := server.New(cfg.ListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, bot, access)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}

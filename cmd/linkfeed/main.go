package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"linkfeed/internal/bot"
	"linkfeed/internal/config"
	"linkfeed/internal/feed"
	"linkfeed/internal/gateway"
	"linkfeed/internal/ingest"
	"linkfeed/internal/scraper"
	"linkfeed/internal/server"
	"linkfeed/internal/storage"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("Invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"http_port":       cfg.HTTPPort,
		"app_url":         cfg.AppURL,
		"db_path":         cfg.DBPath,
		"scraper_backend": cfg.ScraperBackend,
		"bot_token_set":   cfg.TelegramBotToken != "",
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	repo, err := storage.NewBadgerRepository(cfg.DBPath, log, storage.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()

	pageScraper, err := scraper.New(cfg.ScraperBackend, cfg.FetchTimeout, log)
	if err != nil {
		log.Fatalf("Failed to initialize scraper: %v", err)
	}

	tokens := gateway.New(repo)
	pipeline := ingest.NewPipeline(repo, pageScraper, log)
	httpServer := server.New(tokens, feed.NewGenerator(repo, cfg.AppURL), repo, log)

	// --- Application Startup ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	supervise := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.WithError(err).WithField("task", name).Error("Task stopped with error")
				return
			}
			log.WithField("task", name).Info("Task stopped")
		}()
	}

	supervise("gc", func(ctx context.Context) error {
		repo.RunGC(ctx, cfg.GCInterval)
		return nil
	})
	supervise("http", func(ctx context.Context) error {
		return httpServer.Run(ctx, cfg.HTTPPort)
	})
	supervise("telegram", func(ctx context.Context) error {
		if err := cfg.ValidateBot(); err != nil {
			if errors.Is(err, config.ErrMissingBotToken) {
				log.WithError(err).Warn("Telegram consumer disabled, serving feeds only")
				return nil
			}
			return err
		}
		handler, err := bot.NewHandler(cfg.TelegramBotToken, cfg.AppURL, pipeline, tokens, log)
		if err != nil {
			return err
		}
		handler.Start(ctx)
		return nil
	})

	log.Info("linkfeed is running. Press Ctrl+C to exit.")
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down linkfeed...")
	stop()
	wg.Wait()
	log.Info("linkfeed shut down gracefully.")
}

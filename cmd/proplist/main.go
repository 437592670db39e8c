package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vbonduro/proplist/internal/backend"
	"github.com/vbonduro/proplist/internal/config"
	"github.com/vbonduro/proplist/internal/db"
	"github.com/vbonduro/proplist/internal/logging"
	"github.com/vbonduro/proplist/internal/mapper"
	"github.com/vbonduro/proplist/internal/service"
	"github.com/vbonduro/proplist/internal/staging/local"
	"github.com/vbonduro/proplist/internal/store"
	"github.com/vbonduro/proplist/internal/web"
)

const (
	stagingMaxAge   = 24 * time.Hour
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	stg, err := local.NewLocalStore(cfg.StagingPath)
	if err != nil {
		logger.Error("failed to initialize staging store", "error", err)
		return
	}
	if n, err := stg.Sweep(stagingMaxAge); err != nil {
		logger.Warn("failed to sweep staging directory", "error", err)
	} else if n > 0 {
		logger.Info("removed stale staged files", "count", n)
	}

	client := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, logger)
	agents := client.Agents()
	props := client.Properties()

	cache := store.NewAgentCacheStore(database)
	m := mapper.New(agents, cache, cfg.ImageOrigin, cfg.DefaultAgentID, logger)
	defer m.Wait()

	propertyService := service.NewPropertyService(props, m, logger)
	server := web.NewServer(web.Services{
		Properties: propertyService,
		Publisher: service.NewPublisher(props, m, stg, service.PublisherConfig{
			Attempts:   cfg.UploadAttempts,
			RetryDelay: cfg.UploadRetryDelay,
			Verify:     cfg.VerifyAfterSave,
		}, logger),
		Drafts:    service.NewDraftService(stg, props, cfg.MaxImages, logger),
		Inquiries: service.NewInquiryService(propertyService, logger),
		Agents:    service.NewAgentService(agents, cache, logger),
	}, cfg.CORSOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("backend configured", "url", cfg.BackendURL, "image_origin", cfg.ImageOrigin)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
		return
	}
	<-drained
}

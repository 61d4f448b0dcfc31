package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	utils "uploadflow/internal"
	"uploadflow/internal/config"
	"uploadflow/internal/logging"
	"uploadflow/internal/router"
	"uploadflow/internal/s3"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	uploadConfig, err := config.LoadUploadConfig()
	if err != nil {
		utils.Shutdown("Failed to load upload config", "error", err)
	}
	cfg.Upload = uploadConfig
	if err := cfg.Validate(); err != nil {
		utils.Shutdown("Refusing to start", "error", err)
	}

	ctx := context.Background()
	store, err := s3.NewClient(ctx, s3.Options{
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Endpoint:  cfg.S3Endpoint,
	})
	if err != nil {
		utils.Shutdown("Failed to create S3 client", "error", err)
	}
	defer store.Close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router.New(cfg, store, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server 🚀", "port", cfg.Port, "bucket", cfg.S3Bucket, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Shutdown("Server failed to start", "error", err)
		}
	}()

	signal.Notify(utils.QuitChan, syscall.SIGINT, syscall.SIGTERM)
	<-utils.QuitChan

	logger.Info("Shutting down server... 🛑")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown 🚨", "error", err)
		return
	}

	logger.Info("Server exited")
}

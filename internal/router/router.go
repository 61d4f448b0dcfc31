package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"uploadflow/internal/auth"
	"uploadflow/internal/config"
	"uploadflow/internal/logging"
	"uploadflow/internal/response"
	"uploadflow/internal/upload"
)

// New wires the HTTP surface shared by the server and the Lambda entrypoint.
func New(cfg *config.Config, store upload.ObjectStore, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	uploadCfg := cfg.Upload
	if uploadCfg == nil {
		uploadCfg = config.DefaultUploadConfig()
	}

	uploadService := upload.NewService(store, uploadCfg, logger)
	uploadHandler := upload.NewHandler(uploadService, logger, uploadCfg.RequestTimeout())

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.RequestID)
	r.Use(logging.Requests(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.Plain(w, http.StatusOK, "OK")
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.APIKeyMiddleware(&auth.Config{APIKey: cfg.APIKey}))
		r.Mount("/uploads", uploadHandler.Routes())
	})

	return r
}

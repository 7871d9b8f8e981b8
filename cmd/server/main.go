package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/config"
	"github.com/Brownie44l1/skinlens/internal/handlers"
	"github.com/Brownie44l1/skinlens/internal/logger"
	"github.com/Brownie44l1/skinlens/internal/metrics"
	"github.com/Brownie44l1/skinlens/internal/model"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	cfg, err := config.LoadInference()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Loading model",
		zap.String("backend", cfg.Model.Backend),
		zap.String("path", cfg.Model.Path))

	modelServer, err := model.NewServer(model.Config{
		Backend:           model.Backend(cfg.Model.Backend),
		ModelPath:         cfg.Model.Path,
		MetadataPath:      cfg.Model.MetadataPath,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize model server", zap.Error(err))
	}
	defer modelServer.Close()

	m := metrics.New("inference")
	handler := handlers.NewHandler(modelServer, m, log, handlers.Options{
		MaxUploadSize:     cfg.MaxUploadSize,
		LegacyErrorStatus: cfg.LegacyErrorStatus,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", enableCORS(handler.Root))
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/predict", enableCORS(handler.Predict))
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           m.Middleware(log, mux, "/", "/health", "/predict", "/metrics"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("features", modelServer.Metadata.Features),
			zap.Strings("endpoints", []string{"GET /", "GET /health", "POST /predict", "GET /metrics"}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

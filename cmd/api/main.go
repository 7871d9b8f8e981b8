package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/api"
	"github.com/Brownie44l1/skinlens/internal/config"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
	"github.com/Brownie44l1/skinlens/internal/explain"
	"github.com/Brownie44l1/skinlens/internal/inferenceclient"
	"github.com/Brownie44l1/skinlens/internal/logger"
	"github.com/Brownie44l1/skinlens/internal/metrics"
	"github.com/Brownie44l1/skinlens/internal/service"
	"github.com/Brownie44l1/skinlens/internal/storage/blob"
	"github.com/Brownie44l1/skinlens/internal/storage/memory"
	"github.com/Brownie44l1/skinlens/internal/storage/postgres"
)

type repositories struct {
	users       port.UserRepository
	sessions    port.SessionRepository
	posts       port.PostRepository
	uploads     port.UploadRepository
	escalations port.EscalationRepository
	close       func()
}

func openRepositories(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*repositories, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, data is kept in memory only")
		return &repositories{
			users:       memory.NewUserRepository(),
			sessions:    memory.NewSessionRepository(),
			posts:       memory.NewPostRepository(),
			uploads:     memory.NewUploadRepository(),
			escalations: memory.NewEscalationRepository(),
			close:       func() {},
		}, nil
	}

	store, err := postgres.Connect(ctx, cfg.URL, cfg.ConnectTimeout, log)
	if err != nil {
		return nil, err
	}
	return &repositories{
		users:       store.Users,
		sessions:    store.Sessions,
		posts:       store.Posts,
		uploads:     store.Uploads,
		escalations: store.Escalations,
		close:       store.Close,
	}, nil
}

// openImageStore returns the store and, for local storage, the directory to serve.
func openImageStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (port.ImageStore, string, error) {
	switch cfg.Backend {
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UseSSL:          cfg.S3.UseSSL,
			BucketName:      cfg.S3.BucketName,
			Region:          cfg.S3.Region,
			PublicBaseURL:   cfg.PublicBaseURL,
		}, log)
		return store, "", err
	case "local", "":
		store, err := blob.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	default:
		return nil, "", fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer repos.close()

	images, imagesDir, err := openImageStore(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to open image storage", zap.Error(err))
	}

	predictor := inferenceclient.New(cfg.Inference.URL, cfg.Inference.Timeout)
	if err := predictor.Health(ctx); err != nil {
		log.Warn("Inference service not reachable yet",
			zap.String("url", cfg.Inference.URL),
			zap.Error(err))
	}

	generator := explain.New(explain.Config{
		APIKey:  cfg.Explainer.APIKey,
		BaseURL: cfg.Explainer.BaseURL,
		Model:   cfg.Explainer.Model,
		Timeout: cfg.Explainer.Timeout,
	})
	if cfg.Explainer.APIKey == "" {
		log.Warn("No explainer API key, explanations and chat are disabled")
	}

	m := metrics.New("api")
	h := api.NewHandler(api.Services{
		Accounts:    service.NewAccountService(repos.users, repos.sessions, cfg.TokenTTL, cfg.RefreshTTL),
		Posts:       service.NewPostService(repos.posts),
		Uploads:     service.NewUploadService(repos.uploads, images, predictor, generator, m, log),
		Escalations: service.NewEscalationService(repos.escalations, repos.uploads, repos.users),
		Chat:        service.NewChatService(generator),
	}, log, cfg.MaxUploadSize)

	router := api.NewRouter(api.RouterConfig{
		Handler:   h,
		Metrics:   m,
		Log:       log,
		ImagesDir: imagesDir,
	})
	srv := api.NewServer(cfg.Server.Addr(), router, log)

	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

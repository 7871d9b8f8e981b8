package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type LogConfig struct {
	Level       string
	Development bool
}

type ServerConfig struct {
	Host string
	Port string
}

func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

// Inference configures cmd/server.
type Inference struct {
	Server ServerConfig
	Log    LogConfig
	Model  ModelConfig

	MaxUploadSize int64
	// LegacyErrorStatus answers failed predictions with HTTP 200, as older clients expect.
	LegacyErrorStatus bool
}

type ModelConfig struct {
	Backend           string
	Path              string
	MetadataPath      string
	SharedLibraryPath string
}

// API configures cmd/api.
type API struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Inference InferenceClientConfig
	Explainer ExplainerConfig

	MaxUploadSize int64
	TokenTTL      time.Duration
	RefreshTTL    time.Duration
}

type DatabaseConfig struct {
	// URL empty selects the in-memory repositories.
	URL            string
	ConnectTimeout time.Duration
}

type StorageConfig struct {
	Backend       string
	LocalDir      string
	PublicBaseURL string
	S3            S3Config
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type InferenceClientConfig struct {
	URL     string
	Timeout time.Duration
}

type ExplainerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// loadEnv reads .env if present and returns a viper instance bound to the environment.
func loadEnv() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	return v
}

func logConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:       v.GetString("LOG_LEVEL"),
		Development: v.GetBool("LOG_DEVELOPMENT"),
	}
}

// LoadInference reads the inference service configuration.
func LoadInference() (*Inference, error) {
	v := loadEnv()
	v.SetDefault("INFERENCE_HOST", "0.0.0.0")
	v.SetDefault("INFERENCE_PORT", "8080")
	v.SetDefault("MODEL_BACKEND", "onnx")
	v.SetDefault("MODEL_PATH", "models/best_multimodal_model.onnx")
	v.SetDefault("MODEL_METADATA_PATH", "")
	v.SetDefault("ONNXRUNTIME_LIB", "")
	v.SetDefault("INFERENCE_LEGACY_ERROR_STATUS", false)

	port := v.GetString("INFERENCE_PORT")
	if p := v.GetString("PORT"); p != "" {
		port = p
	}

	cfg := &Inference{
		Server: ServerConfig{Host: v.GetString("INFERENCE_HOST"), Port: port},
		Log:    logConfig(v),
		Model: ModelConfig{
			Backend:           v.GetString("MODEL_BACKEND"),
			Path:              v.GetString("MODEL_PATH"),
			MetadataPath:      v.GetString("MODEL_METADATA_PATH"),
			SharedLibraryPath: v.GetString("ONNXRUNTIME_LIB"),
		},
		MaxUploadSize:     v.GetInt64("MAX_UPLOAD_SIZE"),
		LegacyErrorStatus: v.GetBool("INFERENCE_LEGACY_ERROR_STATUS"),
	}

	if cfg.Model.Path == "" {
		return nil, fmt.Errorf("MODEL_PATH is required")
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools that need no server.
func LoadDatabase() DatabaseConfig {
	v := loadEnv()
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_CONNECT_TIMEOUT", 30*time.Second)
	return DatabaseConfig{
		URL:            v.GetString("DATABASE_URL"),
		ConnectTimeout: v.GetDuration("DATABASE_CONNECT_TIMEOUT"),
	}
}

// LoadAPI reads the web API configuration and prepares the local storage directory.
func LoadAPI() (*API, error) {
	v := loadEnv()
	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", "8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_CONNECT_TIMEOUT", 30*time.Second)
	v.SetDefault("STORAGE_BACKEND", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "./images")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("S3_ENDPOINT", "localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "images")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("INFERENCE_URL", "http://localhost:8080")
	v.SetDefault("INFERENCE_TIMEOUT", 30*time.Second)
	v.SetDefault("EXPLAINER_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("EXPLAINER_MODEL", "gemini-2.0-flash")
	v.SetDefault("EXPLAINER_TIMEOUT", 60*time.Second)
	v.SetDefault("TOKEN_TTL", 24*time.Hour)
	v.SetDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour)

	apiKey := v.GetString("EXPLAINER_API_KEY")
	if apiKey == "" {
		apiKey = v.GetString("GEMINI_API_KEY")
	}

	cfg := &API{
		Server: ServerConfig{Host: v.GetString("API_HOST"), Port: v.GetString("API_PORT")},
		Log:    logConfig(v),
		Database: DatabaseConfig{
			URL:            v.GetString("DATABASE_URL"),
			ConnectTimeout: v.GetDuration("DATABASE_CONNECT_TIMEOUT"),
		},
		Storage: StorageConfig{
			Backend:       v.GetString("STORAGE_BACKEND"),
			LocalDir:      v.GetString("STORAGE_LOCAL_DIR"),
			PublicBaseURL: v.GetString("PUBLIC_BASE_URL"),
			S3: S3Config{
				Endpoint:        v.GetString("S3_ENDPOINT"),
				AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
				SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
				UseSSL:          v.GetBool("S3_USE_SSL"),
				BucketName:      v.GetString("S3_BUCKET_NAME"),
				Region:          v.GetString("S3_REGION"),
			},
		},
		Inference: InferenceClientConfig{
			URL:     v.GetString("INFERENCE_URL"),
			Timeout: v.GetDuration("INFERENCE_TIMEOUT"),
		},
		Explainer: ExplainerConfig{
			APIKey:  apiKey,
			BaseURL: v.GetString("EXPLAINER_BASE_URL"),
			Model:   v.GetString("EXPLAINER_MODEL"),
			Timeout: v.GetDuration("EXPLAINER_TIMEOUT"),
		},
		MaxUploadSize: v.GetInt64("MAX_UPLOAD_SIZE"),
		TokenTTL:      v.GetDuration("TOKEN_TTL"),
		RefreshTTL:    v.GetDuration("REFRESH_TOKEN_TTL"),
	}

	if cfg.Storage.Backend == "local" {
		if err := os.MkdirAll(cfg.Storage.LocalDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", cfg.Storage.LocalDir, err)
		}
	}

	return cfg, nil
}

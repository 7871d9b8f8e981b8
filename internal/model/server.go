package model

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/prediction"
	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

// Classifier produces the malignancy logit for one preprocessed pair.
// Implementations must be safe for concurrent use and must not change
// their weights between calls.
type Classifier interface {
	Logit(ctx context.Context, image preprocess.ImageTensor, metadata []float32) (float32, error)
	Close() error
}

// Config locates the model artifact.
type Config struct {
	Backend           Backend
	ModelPath         string
	MetadataPath      string
	SharedLibraryPath string
}

// Server owns the classifier loaded at start-up and runs the full
// bytes-to-verdict pipeline.
type Server struct {
	classifier Classifier
	Metadata   Metadata
	Backend    Backend
	log        *zap.Logger
}

// NewServer loads the model described by cfg. Any failure here means the
// process must not serve traffic.
func NewServer(cfg Config, log *zap.Logger) (*Server, error) {
	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	var classifier Classifier
	switch cfg.Backend {
	case BackendONNX:
		classifier, err = NewONNXClassifier(cfg.ModelPath, metadata, cfg.SharedLibraryPath)
	case BackendNative:
		classifier, err = LoadNativeClassifier(cfg.ModelPath)
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s model from %s: %w", cfg.Backend, cfg.ModelPath, err)
	}

	log.Info("Model loaded",
		zap.String("backend", string(cfg.Backend)),
		zap.String("path", cfg.ModelPath),
		zap.String("version", metadata.Version))

	return NewServerWithClassifier(classifier, metadata, cfg.Backend, log), nil
}

// NewServerWithClassifier wraps an already constructed classifier.
func NewServerWithClassifier(c Classifier, metadata Metadata, backend Backend, log *zap.Logger) *Server {
	return &Server{
		classifier: c,
		Metadata:   metadata,
		Backend:    backend,
		log:        log,
	}
}

// Predict decodes the image and metadata payloads and classifies them.
// Input problems are returned wrapping preprocess.ErrInvalidImage or
// preprocess.ErrInvalidMetadata.
func (s *Server) Predict(ctx context.Context, image, metadata []byte) (prediction.Prediction, error) {
	imageTensor, err := preprocess.Image(image)
	if err != nil {
		return prediction.Prediction{}, err
	}

	metaVector, err := preprocess.ParseMetadata(metadata)
	if err != nil {
		return prediction.Prediction{}, err
	}

	logit, err := s.classifier.Logit(ctx, imageTensor, metaVector)
	if err != nil {
		return prediction.Prediction{}, err
	}
	if math.IsNaN(float64(logit)) {
		return prediction.Prediction{}, fmt.Errorf("model produced a non-numeric output")
	}

	result := prediction.Interpret(logit)
	s.log.Debug("Prediction complete",
		zap.Float32("logit", logit),
		zap.String("label", string(result.Label)),
		zap.Float64("probability", result.Probability))

	return result, nil
}

func (s *Server) Close() {
	if s.classifier == nil {
		return
	}
	if err := s.classifier.Close(); err != nil {
		s.log.Warn("Failed to release model", zap.Error(err))
	}
}

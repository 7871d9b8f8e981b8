package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
	"github.com/Brownie44l1/skinlens/internal/domain/port"
	"github.com/Brownie44l1/skinlens/internal/explain"
	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

const ThumbnailSize = 256

// Outcomes counts domain results, e.g. metrics.Metrics.
type Outcomes interface {
	Outcome(operation, result string)
}

type nopOutcomes struct{}

func (nopOutcomes) Outcome(string, string) {}

type UploadInput struct {
	Filename string
	Data     []byte
	Metadata []byte
}

// UploadService stores lesion images and attaches a prediction and an
// explanation. Neither downstream call can fail an upload.
type UploadService struct {
	uploads   port.UploadRepository
	store     port.ImageStore
	predictor port.Predictor
	explainer port.TextGenerator
	outcomes  Outcomes
	log       *zap.Logger
}

func NewUploadService(uploads port.UploadRepository, store port.ImageStore, predictor port.Predictor, explainer port.TextGenerator, outcomes Outcomes, log *zap.Logger) *UploadService {
	if outcomes == nil {
		outcomes = nopOutcomes{}
	}
	return &UploadService{
		uploads:   uploads,
		store:     store,
		predictor: predictor,
		explainer: explainer,
		outcomes:  outcomes,
		log:       log,
	}
}

func (s *UploadService) Upload(ctx context.Context, owner *entity.User, in UploadInput) (*entity.ImageUpload, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: image required", entity.ErrInvalid)
	}
	metadata, err := normalizeMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot identify image file: %v", entity.ErrInvalid, err)
	}

	id := uuid.NewString()
	key := "uploads/" + id + imageExt(in.Filename)
	if err := s.store.Put(ctx, key, in.Data, http.DetectContentType(in.Data)); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	thumbKey := "thumbnails/" + id + ".jpg"
	var thumb bytes.Buffer
	if err := imaging.Encode(&thumb, imaging.Thumbnail(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos), imaging.JPEG); err != nil {
		s.log.Warn("Failed to encode thumbnail", zap.Error(err))
		thumbKey = ""
	} else if err := s.store.Put(ctx, thumbKey, thumb.Bytes(), "image/jpeg"); err != nil {
		s.log.Warn("Failed to store thumbnail", zap.String("key", thumbKey), zap.Error(err))
		thumbKey = ""
	}

	upload := &entity.ImageUpload{
		UserID:       owner.ID,
		Owner:        owner.Username,
		ImageKey:     key,
		ImageURL:     s.store.URL(key),
		ThumbnailKey: thumbKey,
		Metadata:     metadata,
	}

	upload.Prediction = s.predict(ctx, in, metadata)
	upload.Explanation = s.explain(ctx, upload.Prediction)

	if err := s.uploads.Create(ctx, upload); err != nil {
		s.discard(key, thumbKey)
		return nil, err
	}

	s.log.Info("Image uploaded",
		zap.Int64("id", upload.ID),
		zap.String("user", owner.Username),
		zap.Bool("predicted", upload.HasPrediction()),
		zap.Bool("explained", upload.Explanation != ""))
	return upload, nil
}

// discard removes stored objects of an upload that was never recorded. It
// runs detached from the request so a cancelled request still cleans up.
func (s *UploadService) discard(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("Failed to remove orphaned image", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *UploadService) predict(ctx context.Context, in UploadInput, metadata json.RawMessage) json.RawMessage {
	raw, err := s.predictor.Predict(ctx, in.Data, in.Filename, metadata)
	if err != nil {
		s.log.Warn("Prediction unavailable", zap.Error(err))
		s.outcomes.Outcome("upload_prediction", "error")
		return nil
	}
	s.outcomes.Outcome("upload_prediction", "ok")
	return raw
}

func (s *UploadService) explain(ctx context.Context, prediction json.RawMessage) string {
	prompt, ok := explain.ExplanationPrompt(prediction)
	if !ok {
		return ""
	}
	text, err := s.explainer.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn("Explanation unavailable", zap.Error(err))
		s.outcomes.Outcome("upload_explanation", "error")
		return ""
	}
	s.outcomes.Outcome("upload_explanation", "ok")
	return text
}

// Get returns an upload visible to viewer.
func (s *UploadService) Get(ctx context.Context, viewer *entity.User, id int64) (*entity.ImageUpload, error) {
	upload, err := s.uploads.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upload.UserID != viewer.ID && !viewer.Role.CanReview() {
		return nil, entity.ErrForbidden
	}
	return upload, nil
}

func (s *UploadService) List(ctx context.Context, owner *entity.User) ([]entity.ImageUpload, error) {
	return s.uploads.ListByUser(ctx, owner.ID)
}

// normalizeMetadata accepts an object or a JSON string holding one, and
// returns the object. Empty input becomes {}.
func normalizeMetadata(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	values, err := preprocess.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalid, err)
	}
	out, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func imageExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return ext
	}
	return ".jpg"
}

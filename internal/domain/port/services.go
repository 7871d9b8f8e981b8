package port

import (
	"context"
	"encoding/json"
)

// ImageStore keeps uploaded image bytes under a key.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Predictor asks the inference service about one image. The returned body
// is the service response verbatim.
type Predictor interface {
	Predict(ctx context.Context, image []byte, filename string, metadata []byte) (json.RawMessage, error)
}

// TextGenerator is an opaque text-in/text-out language model.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

package entity

import (
	"encoding/json"
	"time"
)

// ImageUpload is a stored lesion image together with what the inference
// service and the explainer said about it. Prediction holds the inference
// response body verbatim and is empty when the service could not be reached.
type ImageUpload struct {
	ID           int64
	UserID       int64
	Owner        string
	ImageKey     string
	ImageURL     string
	ThumbnailKey string
	Metadata     json.RawMessage
	Prediction   json.RawMessage
	Explanation  string
	UploadedAt   time.Time
}

// HasPrediction reports whether a prediction was recorded.
func (u *ImageUpload) HasPrediction() bool {
	return len(u.Prediction) > 0 && string(u.Prediction) != "null"
}

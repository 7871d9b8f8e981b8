package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

// Backend selects how the classifier is executed.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendNative Backend = "native"
)

// Metadata describes an exported model artifact.
type Metadata struct {
	Version       string   `json:"version"`
	ImageInput    string   `json:"image_input"`
	MetadataInput string   `json:"metadata_input"`
	Output        string   `json:"output"`
	ImageSize     int      `json:"image_size"`
	Features      []string `json:"features"`
}

// DefaultMetadata describes the graph the ONNX backend feeds when no metadata
// file is given: float32 inputs "image" [1,3,ImageSize,ImageSize] and
// "metadata" [1,len(Features)], and a single "logit" [1,1] output.
func DefaultMetadata() Metadata {
	return Metadata{
		Version:       "multimodal-resnet18",
		ImageInput:    "image",
		MetadataInput: "metadata",
		Output:        "logit",
		ImageSize:     preprocess.ImageSize,
		Features:      preprocess.MetadataSchema.Names(),
	}
}

// LoadMetadata reads a metadata JSON file; fields it leaves empty keep their defaults.
// An empty path returns DefaultMetadata.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, meta.Validate()
}

// Validate checks the artifact against the preprocessing this binary performs.
func (m Metadata) Validate() error {
	if m.ImageSize != preprocess.ImageSize {
		return fmt.Errorf("model expects %dpx images, preprocessing produces %dpx", m.ImageSize, preprocess.ImageSize)
	}
	if want := preprocess.MetadataSchema.Names(); !slices.Equal(m.Features, want) {
		return fmt.Errorf("model feature layout %v does not match metadata schema %v", m.Features, want)
	}
	return nil
}

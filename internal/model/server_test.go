package model

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/nn"
	"github.com/Brownie44l1/skinlens/internal/prediction"
	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

type stubClassifier struct {
	logit float32
	err   error

	gotImage preprocess.ImageTensor
	gotMeta  []float32
}

func (s *stubClassifier) Logit(_ context.Context, image preprocess.ImageTensor, metadata []float32) (float32, error) {
	s.gotImage, s.gotMeta = image, metadata
	return s.logit, s.err
}

func (s *stubClassifier) Close() error { return nil }

func lesionPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 190, G: uint8(120 + x), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const fullMetadata = `{"smoke":0,"drink":0,"background_father":1,"background_mother":1,"age":45,"gender":1,
"skin_cancer_history":0,"cancer_history":0,"region":3,"itch":0,"grew":0,"hurt":0,"changed":0,
"bleed":0,"elevation":0,"biopsed":1,"fitzpatrick":2}`

func TestServer_PredictBenign(t *testing.T) {
	stub := &stubClassifier{logit: -2.5}
	s := NewServerWithClassifier(stub, DefaultMetadata(), BackendNative, zap.NewNop())

	got, err := s.Predict(context.Background(), lesionPNG(t), []byte(fullMetadata))
	require.NoError(t, err)
	assert.Equal(t, prediction.Benign, got.Label)
	assert.Less(t, got.Probability, 0.5)
	assert.Equal(t, prediction.High, got.Confidence)

	assert.Equal(t, []int64{1, 3, 224, 224}, stub.gotImage.Shape())
	require.Len(t, stub.gotMeta, 17)
	assert.Equal(t, float32(45), stub.gotMeta[4])
}

func TestServer_PredictInputErrors(t *testing.T) {
	s := NewServerWithClassifier(&stubClassifier{}, DefaultMetadata(), BackendNative, zap.NewNop())

	_, err := s.Predict(context.Background(), nil, []byte(fullMetadata))
	assert.True(t, errors.Is(err, preprocess.ErrInvalidImage))

	_, err = s.Predict(context.Background(), lesionPNG(t), []byte("not json"))
	assert.True(t, errors.Is(err, preprocess.ErrInvalidMetadata))
}

func TestServer_PredictClassifierFailure(t *testing.T) {
	s := NewServerWithClassifier(&stubClassifier{err: errors.New("session closed")}, DefaultMetadata(), BackendONNX, zap.NewNop())
	_, err := s.Predict(context.Background(), lesionPNG(t), []byte(fullMetadata))
	require.EqualError(t, err, "session closed")

	s = NewServerWithClassifier(&stubClassifier{logit: float32(math.NaN())}, DefaultMetadata(), BackendONNX, zap.NewNop())
	_, err = s.Predict(context.Background(), lesionPNG(t), []byte(fullMetadata))
	require.Error(t, err)
}

func TestNewServer_Native(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, nn.EncodeSafetensors(&buf, nn.InitParams(MultimodalSpecs(), 9)))
	modelPath := filepath.Join(dir, "model.safetensors")
	require.NoError(t, os.WriteFile(modelPath, buf.Bytes(), 0o644))

	s, err := NewServer(Config{Backend: BackendNative, ModelPath: modelPath}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, BackendNative, s.Backend)
	assert.Equal(t, "logit", s.Metadata.Output)
}

func TestNewServer_LoadErrors(t *testing.T) {
	_, err := NewServer(Config{Backend: "tflite"}, zap.NewNop())
	require.Error(t, err)

	_, err = NewServer(Config{Backend: BackendNative, ModelPath: filepath.Join(t.TempDir(), "missing")}, zap.NewNop())
	require.Error(t, err)
}

func TestDefaultMetadata_MatchesPreprocessing(t *testing.T) {
	meta := DefaultMetadata()
	require.NoError(t, meta.Validate())
	assert.Equal(t, "image", meta.ImageInput)
	assert.Equal(t, "metadata", meta.MetadataInput)
	assert.Equal(t, "logit", meta.Output)

	empty, err := LoadMetadata("")
	require.NoError(t, err)
	assert.Equal(t, meta, empty)
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"version":"v7","output":"out"}`), 0o644))
	meta, err := LoadMetadata(good)
	require.NoError(t, err)
	assert.Equal(t, "v7", meta.Version)
	assert.Equal(t, "out", meta.Output)
	assert.Equal(t, "image", meta.ImageInput)

	reordered := filepath.Join(dir, "reordered.json")
	require.NoError(t, os.WriteFile(reordered, []byte(`{"features":["age","smoke"]}`), 0o644))
	_, err = LoadMetadata(reordered)
	require.Error(t, err)

	wrongSize := filepath.Join(dir, "size.json")
	require.NoError(t, os.WriteFile(wrongSize, []byte(`{"image_size":256}`), 0o644))
	_, err = LoadMetadata(wrongSize)
	require.Error(t, err)

	_, err = LoadMetadata(filepath.Join(dir, "absent.json"))
	require.Error(t, err)
}

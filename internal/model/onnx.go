package model

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

// ONNXClassifier runs an exported multimodal graph through onnxruntime.
// Tensors are allocated per call, so concurrent Logit calls share only the session.
type ONNXClassifier struct {
	session *ort.DynamicAdvancedSession
	meta    Metadata
}

// NewONNXClassifier initializes the onnxruntime environment (once per process)
// and opens a session on modelPath. libPath overrides the shared library location.
func NewONNXClassifier(modelPath string, meta Metadata, libPath string) (*ONNXClassifier, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{meta.ImageInput, meta.MetadataInput}, []string{meta.Output}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXClassifier{session: session, meta: meta}, nil
}

func (c *ONNXClassifier) Logit(ctx context.Context, image preprocess.ImageTensor, metadata []float32) (float32, error) {
	imageTensor, err := ort.NewTensor(ort.NewShape(image.Shape()...), image.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to create image tensor: %w", err)
	}
	defer imageTensor.Destroy()

	metaTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(metadata))), metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to create metadata tensor: %w", err)
	}
	defer metaTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = c.session.Run(
		[]ort.ArbitraryTensor{imageTensor, metaTensor},
		[]ort.ArbitraryTensor{outputTensor})
	if err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	return outputTensor.GetData()[0], nil
}

func (c *ONNXClassifier) Close() error {
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}

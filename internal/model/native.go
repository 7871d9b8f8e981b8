package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/Brownie44l1/skinlens/internal/nn"
	"github.com/Brownie44l1/skinlens/internal/preprocess"
)

const (
	metadataHidden = 32
	headHidden     = 64
	dropoutRate    = 0.3
)

// MultimodalNet fuses the ResNet-18 image embedding with an embedded metadata
// vector and maps the pair to a single logit.
type MultimodalNet struct {
	backbone *nn.ResNet18

	metaFC *nn.Linear
	metaBN *nn.BatchNorm

	hidden  *nn.Linear
	dropout nn.Dropout
	out     *nn.Linear
}

// NewMultimodalNet binds the network to state-dict names: cnn.*, metadata_fc.{0,2}.*
// and classifier.{0,3}.*.
func NewMultimodalNet(b *nn.Binder) *MultimodalNet {
	features := len(preprocess.MetadataSchema)
	return &MultimodalNet{
		backbone: nn.NewResNet18(b, "cnn"),
		metaFC:   b.Linear("metadata_fc.0", features, metadataHidden),
		metaBN:   b.BatchNorm("metadata_fc.2", metadataHidden),
		hidden:   b.Linear("classifier.0", nn.EmbeddingDim+metadataHidden, headHidden),
		dropout:  nn.Dropout{P: dropoutRate},
		out:      b.Linear("classifier.3", headHidden, 1),
	}
}

// MultimodalSpecs lists every tensor a checkpoint must provide.
func MultimodalSpecs() []nn.ParamSpec {
	b := nn.SpecCollector()
	NewMultimodalNet(b)
	return b.Specs()
}

// Forward returns [N,1] logits for an NCHW image batch and an [N,17] metadata batch.
func (m *MultimodalNet) Forward(image, metadata *nn.Tensor, mode nn.Mode) (*nn.Tensor, error) {
	imgEmb, err := m.backbone.Forward(image, mode)
	if err != nil {
		return nil, fmt.Errorf("image branch: %w", err)
	}

	metaEmb, err := m.metaFC.Forward(metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata branch: %w", err)
	}
	if metaEmb, err = m.metaBN.Forward(nn.ReLU(metaEmb), mode); err != nil {
		return nil, fmt.Errorf("metadata branch: %w", err)
	}

	combined, err := nn.Concat(imgEmb, metaEmb)
	if err != nil {
		return nil, err
	}

	h, err := m.hidden.Forward(combined)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	h = m.dropout.Forward(nn.ReLU(h), mode)
	return m.out.Forward(h)
}

// NativeClassifier runs MultimodalNet in pure Go. The network is read-only
// after construction and safe for concurrent use.
type NativeClassifier struct {
	net *MultimodalNet
}

// NewNativeClassifier binds params strictly: missing, mis-shaped or unexpected
// tensors are all errors.
func NewNativeClassifier(params nn.Params) (*NativeClassifier, error) {
	b := nn.NewBinder(params)
	net := NewMultimodalNet(b)
	if err := b.Err(); err != nil {
		return nil, err
	}
	if unused := b.Unused(); len(unused) > 0 {
		return nil, fmt.Errorf("checkpoint has unexpected tensors: %s", strings.Join(unused, ", "))
	}
	return &NativeClassifier{net: net}, nil
}

// LoadNativeClassifier reads a safetensors checkpoint from disk.
func LoadNativeClassifier(path string) (*NativeClassifier, error) {
	params, err := nn.LoadSafetensors(path)
	if err != nil {
		return nil, err
	}
	return NewNativeClassifier(params)
}

func (c *NativeClassifier) Logit(ctx context.Context, image preprocess.ImageTensor, metadata []float32) (float32, error) {
	img, err := nn.FromData(image.Data, 1, preprocess.Channels, image.Height, image.Width)
	if err != nil {
		return 0, fmt.Errorf("image tensor: %w", err)
	}
	meta, err := nn.FromData(metadata, 1, len(metadata))
	if err != nil {
		return 0, fmt.Errorf("metadata tensor: %w", err)
	}

	out, err := c.net.Forward(img, meta, nn.Inference)
	if err != nil {
		return 0, err
	}
	return out.Data[0], nil
}

func (c *NativeClassifier) Close() error { return nil }

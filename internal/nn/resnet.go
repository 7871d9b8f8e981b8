package nn

import "fmt"

// EmbeddingDim is the width of the backbone output once the classification layer is dropped.
const EmbeddingDim = 512

type basicBlock struct {
	conv1 *Conv2d
	bn1   *BatchNorm
	conv2 *Conv2d
	bn2   *BatchNorm

	downConv *Conv2d
	downBN   *BatchNorm
}

func newBasicBlock(b *Binder, name string, in, out, stride int) *basicBlock {
	blk := &basicBlock{
		conv1: b.Conv2d(name+".conv1", in, out, 3, stride, 1),
		bn1:   b.BatchNorm(name+".bn1", out),
		conv2: b.Conv2d(name+".conv2", out, out, 3, 1, 1),
		bn2:   b.BatchNorm(name+".bn2", out),
	}
	if stride != 1 || in != out {
		blk.downConv = b.Conv2d(name+".downsample.0", in, out, 1, stride, 0)
		blk.downBN = b.BatchNorm(name+".downsample.1", out)
	}
	return blk
}

func (blk *basicBlock) forward(x *Tensor, mode Mode) (*Tensor, error) {
	out, err := blk.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if out, err = blk.bn1.Forward(out, mode); err != nil {
		return nil, err
	}
	out = ReLU(out)
	if out, err = blk.conv2.Forward(out); err != nil {
		return nil, err
	}
	if out, err = blk.bn2.Forward(out, mode); err != nil {
		return nil, err
	}

	identity := x
	if blk.downConv != nil {
		if identity, err = blk.downConv.Forward(x); err != nil {
			return nil, err
		}
		if identity, err = blk.downBN.Forward(identity, mode); err != nil {
			return nil, err
		}
	}

	sum, err := Add(out, identity)
	if err != nil {
		return nil, err
	}
	return ReLU(sum), nil
}

// ResNet18 is the torchvision ResNet-18 layout with the final fully connected
// layer removed; it maps an NCHW image batch to [N, EmbeddingDim].
type ResNet18 struct {
	conv1  *Conv2d
	bn1    *BatchNorm
	stages [4][2]*basicBlock
}

// NewResNet18 binds the backbone parameters found under prefix (e.g. "cnn").
func NewResNet18(b *Binder, prefix string) *ResNet18 {
	r := &ResNet18{
		conv1: b.Conv2d(prefix+".conv1", 3, 64, 7, 2, 3),
		bn1:   b.BatchNorm(prefix+".bn1", 64),
	}

	widths := [4]int{64, 128, 256, 512}
	in := 64
	for s, width := range widths {
		stride := 2
		if s == 0 {
			stride = 1
		}
		name := fmt.Sprintf("%s.layer%d", prefix, s+1)
		r.stages[s][0] = newBasicBlock(b, name+".0", in, width, stride)
		r.stages[s][1] = newBasicBlock(b, name+".1", width, width, 1)
		in = width
	}
	return r
}

// Forward computes the image embedding.
func (r *ResNet18) Forward(x *Tensor, mode Mode) (*Tensor, error) {
	out, err := r.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if out, err = r.bn1.Forward(out, mode); err != nil {
		return nil, err
	}
	out = ReLU(out)
	if out, err = MaxPool2d(out, 3, 2, 1); err != nil {
		return nil, err
	}

	for s := range r.stages {
		for _, blk := range r.stages[s] {
			if out, err = blk.forward(out, mode); err != nil {
				return nil, fmt.Errorf("layer%d: %w", s+1, err)
			}
		}
	}
	return GlobalAvgPool(out)
}

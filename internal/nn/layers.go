package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Conv2d is a square-kernel 2-D convolution over NCHW input.
type Conv2d struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int
	Weight      []float32 // [out, in, k, k]
	Bias        []float32 // optional, [out]
}

func (c *Conv2d) Forward(x *Tensor) (*Tensor, error) {
	if len(x.Shape) != 4 || x.Shape[1] != c.InChannels {
		return nil, fmt.Errorf("conv2d: expected [N,%d,H,W] input, got %v", c.InChannels, x.Shape)
	}
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	k, s, p := c.Kernel, c.Stride, c.Padding
	oh := (h+2*p-k)/s + 1
	ow := (w+2*p-k)/s + 1
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("conv2d: input %dx%d too small for kernel %d", h, w, k)
	}

	out := New(n, c.OutChannels, oh, ow)
	inPlane, outPlane := h*w, oh*ow

	parallelFor(n*c.OutChannels, func(job int) {
		b, oc := job/c.OutChannels, job%c.OutChannels
		dst := out.Data[job*outPlane : (job+1)*outPlane]
		if c.Bias != nil {
			for i := range dst {
				dst[i] = c.Bias[oc]
			}
		}

		for ic := 0; ic < c.InChannels; ic++ {
			src := x.Data[(b*c.InChannels+ic)*inPlane : (b*c.InChannels+ic+1)*inPlane]
			kernel := c.Weight[(oc*c.InChannels+ic)*k*k : (oc*c.InChannels+ic+1)*k*k]
			for ky := 0; ky < k; ky++ {
				for kx := 0; kx < k; kx++ {
					wv := kernel[ky*k+kx]
					if wv == 0 {
						continue
					}
					for oy := 0; oy < oh; oy++ {
						iy := oy*s - p + ky
						if iy < 0 || iy >= h {
							continue
						}
						row := src[iy*w : (iy+1)*w]
						drow := dst[oy*ow : (oy+1)*ow]
						for ox := 0; ox < ow; ox++ {
							ix := ox*s - p + kx
							if ix < 0 || ix >= w {
								continue
							}
							drow[ox] += wv * row[ix]
						}
					}
				}
			}
		}
	})

	return out, nil
}

// BatchNorm normalizes per channel over [N,C] or [N,C,H,W] input.
type BatchNorm struct {
	Features    int
	Eps         float32
	Weight      []float32
	Bias        []float32
	RunningMean []float32
	RunningVar  []float32
}

func (bn *BatchNorm) Forward(x *Tensor, mode Mode) (*Tensor, error) {
	if len(x.Shape) < 2 || x.Shape[1] != bn.Features {
		return nil, fmt.Errorf("batchnorm: expected %d channels, got shape %v", bn.Features, x.Shape)
	}
	n, c := x.Shape[0], x.Shape[1]
	spatial := x.Len() / (n * c)

	mean, variance := bn.RunningMean, bn.RunningVar
	if mode == Training {
		if n*spatial < 2 {
			return nil, fmt.Errorf("batchnorm: training mode needs more than one value per channel")
		}
		mean, variance = batchStats(x, n, c, spatial)
	}

	out := New(x.Shape...)
	for ch := 0; ch < c; ch++ {
		scale := bn.Weight[ch] / float32(math.Sqrt(float64(variance[ch]+bn.Eps)))
		shift := bn.Bias[ch] - mean[ch]*scale
		for b := 0; b < n; b++ {
			base := (b*c + ch) * spatial
			for i := base; i < base+spatial; i++ {
				out.Data[i] = x.Data[i]*scale + shift
			}
		}
	}
	return out, nil
}

func batchStats(x *Tensor, n, c, spatial int) (mean, variance []float32) {
	mean = make([]float32, c)
	variance = make([]float32, c)
	count := float64(n * spatial)
	for ch := 0; ch < c; ch++ {
		var sum, sq float64
		for b := 0; b < n; b++ {
			base := (b*c + ch) * spatial
			for _, v := range x.Data[base : base+spatial] {
				sum += float64(v)
				sq += float64(v) * float64(v)
			}
		}
		m := sum / count
		mean[ch] = float32(m)
		variance[ch] = float32(sq/count - m*m)
	}
	return mean, variance
}

// Linear is a fully connected layer over [N,In] input.
type Linear struct {
	In     int
	Out    int
	Weight []float32 // [out, in]
	Bias   []float32 // [out]
}

func (l *Linear) Forward(x *Tensor) (*Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != l.In {
		return nil, fmt.Errorf("linear: expected [N,%d] input, got %v", l.In, x.Shape)
	}
	n := x.Shape[0]
	out := New(n, l.Out)
	for b := 0; b < n; b++ {
		in := x.Data[b*l.In : (b+1)*l.In]
		for o := 0; o < l.Out; o++ {
			w := l.Weight[o*l.In : (o+1)*l.In]
			acc := l.Bias[o]
			for i, v := range in {
				acc += w[i] * v
			}
			out.Data[b*l.Out+o] = acc
		}
	}
	return out, nil
}

// ReLU returns max(x, 0) elementwise.
func ReLU(x *Tensor) *Tensor {
	out := New(x.Shape...)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

// Dropout zeroes activations with probability P during training only.
type Dropout struct {
	P float32
}

func (d Dropout) Forward(x *Tensor, mode Mode) *Tensor {
	if mode == Inference || d.P <= 0 {
		return x
	}
	out := New(x.Shape...)
	keep := 1 - d.P
	for i, v := range x.Data {
		if rand.Float32() < keep {
			out.Data[i] = v / keep
		}
	}
	return out
}

// MaxPool2d pools NCHW input with a square window.
func MaxPool2d(x *Tensor, kernel, stride, padding int) (*Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("maxpool: expected 4-D input, got %v", x.Shape)
	}
	n, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	oh := (h+2*padding-kernel)/stride + 1
	ow := (w+2*padding-kernel)/stride + 1
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("maxpool: input %dx%d too small", h, w)
	}

	out := New(n, c, oh, ow)
	for plane := 0; plane < n*c; plane++ {
		src := x.Data[plane*h*w : (plane+1)*h*w]
		dst := out.Data[plane*oh*ow : (plane+1)*oh*ow]
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				best := float32(math.Inf(-1))
				for ky := 0; ky < kernel; ky++ {
					iy := oy*stride - padding + ky
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < kernel; kx++ {
						ix := ox*stride - padding + kx
						if ix < 0 || ix >= w {
							continue
						}
						if v := src[iy*w+ix]; v > best {
							best = v
						}
					}
				}
				dst[oy*ow+ox] = best
			}
		}
	}
	return out, nil
}

// GlobalAvgPool averages each channel of NCHW input, producing [N,C].
func GlobalAvgPool(x *Tensor) (*Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("avgpool: expected 4-D input, got %v", x.Shape)
	}
	n, c := x.Shape[0], x.Shape[1]
	spatial := x.Shape[2] * x.Shape[3]
	out := New(n, c)
	for plane := 0; plane < n*c; plane++ {
		var sum float32
		for _, v := range x.Data[plane*spatial : (plane+1)*spatial] {
			sum += v
		}
		out.Data[plane] = sum / float32(spatial)
	}
	return out, nil
}

// Add sums two tensors of identical shape into a new tensor.
func Add(a, b *Tensor) (*Tensor, error) {
	if !a.sameShape(b.Shape) {
		return nil, fmt.Errorf("add: shape mismatch %v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

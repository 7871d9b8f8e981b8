package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
)

// Params maps state-dict style names (e.g. "cnn.layer1.0.conv1.weight") to tensors.
type Params map[string]*Tensor

// ParamSpec describes one tensor an architecture expects.
type ParamSpec struct {
	Name  string
	Shape []int
}

// Binder hands named parameters to layer constructors and records every
// missing or mis-shaped entry, so a whole network can be built before
// reporting what went wrong.
type Binder struct {
	params  Params
	collect bool
	used    map[string]bool
	specs   []ParamSpec
	errs    []string
}

// NewBinder binds layers to the given parameters.
func NewBinder(p Params) *Binder {
	return &Binder{params: p, used: make(map[string]bool)}
}

// SpecCollector returns a binder that allocates zeroed parameters and only
// records what the architecture asks for.
func SpecCollector() *Binder {
	return &Binder{collect: true, used: make(map[string]bool)}
}

// Take returns the data of the named parameter.
func (b *Binder) Take(name string, shape ...int) []float32 {
	b.used[name] = true
	b.specs = append(b.specs, ParamSpec{Name: name, Shape: append([]int(nil), shape...)})
	if b.collect {
		return make([]float32, numel(shape))
	}

	t, ok := b.params[name]
	if !ok {
		b.errs = append(b.errs, fmt.Sprintf("missing %s", name))
		return make([]float32, numel(shape))
	}
	if !t.sameShape(shape) {
		b.errs = append(b.errs, fmt.Sprintf("%s: expected shape %v, got %v", name, shape, t.Shape))
		return make([]float32, numel(shape))
	}
	return t.Data
}

// Specs lists the parameters requested so far, in request order.
func (b *Binder) Specs() []ParamSpec { return b.specs }

// Unused lists parameters that no layer asked for, sorted.
func (b *Binder) Unused() []string {
	var names []string
	for name := range b.params {
		if !b.used[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Err reports every binding problem, or nil.
func (b *Binder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	if len(b.errs) > 5 {
		return fmt.Errorf("checkpoint mismatch (%d problems): %s, ...", len(b.errs), strings.Join(b.errs[:5], "; "))
	}
	return fmt.Errorf("checkpoint mismatch: %s", strings.Join(b.errs, "; "))
}

func (b *Binder) Conv2d(name string, in, out, kernel, stride, padding int) *Conv2d {
	return &Conv2d{
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      stride,
		Padding:     padding,
		Weight:      b.Take(name+".weight", out, in, kernel, kernel),
	}
}

func (b *Binder) BatchNorm(name string, features int) *BatchNorm {
	return &BatchNorm{
		Features:    features,
		Eps:         1e-5,
		Weight:      b.Take(name+".weight", features),
		Bias:        b.Take(name+".bias", features),
		RunningMean: b.Take(name+".running_mean", features),
		RunningVar:  b.Take(name+".running_var", features),
	}
}

func (b *Binder) Linear(name string, in, out int) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: b.Take(name+".weight", out, in),
		Bias:   b.Take(name+".bias", out),
	}
}

// InitParams fills specs with freshly initialized values: He-normal weights,
// zero biases and identity batch-norm statistics. The same seed always yields
// the same parameters.
func InitParams(specs []ParamSpec, seed uint64) Params {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	params := make(Params, len(specs))
	for _, spec := range specs {
		t := New(spec.Shape...)
		switch {
		case strings.HasSuffix(spec.Name, ".running_var"):
			fill(t.Data, 1)
		case strings.HasSuffix(spec.Name, ".running_mean"), strings.HasSuffix(spec.Name, ".bias"):
		case len(spec.Shape) == 1:
			fill(t.Data, 1)
		default:
			fanIn := t.Len() / spec.Shape[0]
			std := math.Sqrt(2 / float64(fanIn))
			for i := range t.Data {
				t.Data[i] = float32(rng.NormFloat64() * std)
			}
		}
		params[spec.Name] = t
	}
	return params
}

func fill(data []float32, v float32) {
	for i := range data {
		data[i] = v
	}
}

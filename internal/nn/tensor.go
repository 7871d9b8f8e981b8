// Package nn implements the inference-only building blocks of the multimodal
// classifier: dense tensors, convolution, batch normalization and the ResNet-18
// backbone. Weights are never mutated after loading, so a built network can be
// shared by concurrent callers.
package nn

import (
	"fmt"
	"runtime"
	"sync"
)

// Mode selects between training and inference behaviour of stochastic and
// statistics-dependent layers.
type Mode int

const (
	// Inference disables dropout and makes batch normalization use stored statistics.
	Inference Mode = iota
	// Training applies dropout and normalizes with per-batch statistics.
	// Stored statistics are left untouched.
	Training
)

func (m Mode) String() string {
	if m == Training {
		return "training"
	}
	return "inference"
}

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zeroed tensor.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, numel(shape))}
}

// FromData wraps data without copying. len(data) must match the shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Len is the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

func (t *Tensor) sameShape(shape []int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i := range shape {
		if t.Shape[i] != shape[i] {
			return false
		}
	}
	return true
}

// Concat joins two 2-D tensors along the feature dimension.
func Concat(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 || a.Shape[0] != b.Shape[0] {
		return nil, fmt.Errorf("concat: incompatible shapes %v and %v", a.Shape, b.Shape)
	}
	n, da, db := a.Shape[0], a.Shape[1], b.Shape[1]
	out := New(n, da+db)
	for i := 0; i < n; i++ {
		row := out.Data[i*(da+db) : (i+1)*(da+db)]
		copy(row, a.Data[i*da:(i+1)*da])
		copy(row[da:], b.Data[i*db:(i+1)*db])
	}
	return out, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// parallelFor runs fn over [0,n) split across the available CPUs. Each index
// is visited exactly once; callers write to disjoint regions.
func parallelFor(n int, fn func(i int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResNet18_ParameterLayout(t *testing.T) {
	b := SpecCollector()
	NewResNet18(b, "cnn")
	specs := b.Specs()

	require.Len(t, specs, 100)
	assert.Equal(t, ParamSpec{Name: "cnn.conv1.weight", Shape: []int{64, 3, 7, 7}}, specs[0])

	byName := make(map[string][]int, len(specs))
	for _, s := range specs {
		byName[s.Name] = s.Shape
	}
	assert.Equal(t, []int{128, 64, 1, 1}, byName["cnn.layer2.0.downsample.0.weight"])
	assert.Equal(t, []int{512}, byName["cnn.layer4.1.bn2.running_var"])
	assert.NotContains(t, byName, "cnn.layer1.0.downsample.0.weight")
	assert.NotContains(t, byName, "cnn.fc.weight")
}

func TestResNet18_Forward(t *testing.T) {
	collector := SpecCollector()
	NewResNet18(collector, "cnn")
	params := InitParams(collector.Specs(), 7)

	binder := NewBinder(params)
	net := NewResNet18(binder, "cnn")
	require.NoError(t, binder.Err())
	assert.Empty(t, binder.Unused())

	x := New(1, 3, 32, 32)
	for i := range x.Data {
		x.Data[i] = float32(i%17)/8 - 1
	}

	emb, err := net.Forward(x, Inference)
	require.NoError(t, err)
	assert.Equal(t, []int{1, EmbeddingDim}, emb.Shape)

	again, err := net.Forward(x, Inference)
	require.NoError(t, err)
	assert.Equal(t, emb.Data, again.Data)
}

func TestBinder_ReportsProblems(t *testing.T) {
	b := NewBinder(Params{
		"head.weight": {Shape: []int{2, 3}, Data: make([]float32, 6)},
		"extra":       {Shape: []int{1}, Data: []float32{1}},
	})
	b.Linear("head", 4, 2)

	err := b.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "head.weight: expected shape [2 4]")
	assert.Contains(t, err.Error(), "missing head.bias")
	assert.Equal(t, []string{"extra"}, b.Unused())
}

func TestInitParams_Deterministic(t *testing.T) {
	specs := []ParamSpec{{Name: "l.weight", Shape: []int{4, 8}}, {Name: "bn.weight", Shape: []int{4}}, {Name: "bn.running_var", Shape: []int{4}}}
	a := InitParams(specs, 42)
	b := InitParams(specs, 42)
	assert.Equal(t, a, b)
	assert.Equal(t, []float32{1, 1, 1, 1}, a["bn.weight"].Data)
	assert.Equal(t, []float32{1, 1, 1, 1}, a["bn.running_var"].Data)
}

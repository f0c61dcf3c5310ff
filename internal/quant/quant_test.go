package quant

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/internal/memory"
	"chatd/internal/nn"
)

type testModel struct{ root *nn.Container }

func (m *testModel) Graph() *nn.Container     { return m.root }
func (m *testModel) SetGraph(c *nn.Container) { m.root = c }

func randLinear(t *testing.T, rng *rand.Rand, name string, in, out int) *nn.Linear {
	t.Helper()
	w := make([]float32, in*out)
	for i := range w {
		w[i] = rng.Float32()*2 - 1
	}
	b := make([]float32, out)
	l, err := nn.NewLinear(name, nn.NewF32(name+".weight", w, out, in), nn.NewF32(name+".bias", b, out))
	require.NoError(t, err)
	return l
}

// newTestModel builds blocks nested two levels deep with two dense layers each.
func newTestModel(t *testing.T, blocks int) *testModel {
	rng := rand.New(rand.NewSource(1))
	inner := nn.NewContainer("blocks", "Blocks")
	for i := 0; i < blocks; i++ {
		inner.Append(nn.NewContainer("b"+string(rune('0'+i)), "Block",
			randLinear(t, rng, "up", 8, 16),
			nn.NewSiLU("act"),
			randLinear(t, rng, "down", 16, 8),
		))
	}
	root := nn.NewContainer("model", "Model", inner, nn.NewRMSNorm("norm", nn.NewF32("norm.weight", []float32{1, 1, 1, 1, 1, 1, 1, 1}, 8), 1e-6))
	return &testModel{root: root}
}

func forwardAll(t *testing.T, m *testModel, x []float32) []float32 {
	t.Helper()
	blocks, _ := m.root.Lookup("blocks")
	h := x
	bp := blocks.(nn.Parent)
	for i := 0; i < bp.NumChildren(); i++ {
		blk := bp.Child(i).(nn.Parent)
		y := h
		for j := 0; j < blk.NumChildren(); j++ {
			var err error
			y, err = blk.Child(j).(nn.Layer).Forward(y)
			require.NoError(t, err)
		}
		h = y
	}
	return h
}

func enabled(probe memory.Probe, safe bool) Options {
	return Options{Enabled: true, Safe: safe, Probe: probe, Arch: "arm64"}
}

func TestPlanHeadroomGate(t *testing.T) {
	const est = 1000
	p := PlanFor("cpu", est, enabled(memory.Fixed(est), true))
	assert.Equal(t, ModeSkipped, p.Mode)
	assert.True(t, p.MemoryKnown)
	assert.Contains(t, p.Reason, "headroom")

	p = PlanFor("cpu", est, enabled(memory.Fixed(1199), true))
	assert.Equal(t, ModeSkipped, p.Mode)

	p = PlanFor("cpu", est, enabled(memory.Fixed(1200), true))
	assert.Equal(t, ModeSafeLayerwise, p.Mode)

	p = PlanFor("cpu", est, enabled(memory.Fixed(2*est), true))
	assert.Equal(t, ModeSafeLayerwise, p.Mode)

	p = PlanFor("cpu", est, enabled(memory.Fixed(2*est), false))
	assert.Equal(t, ModeBulk, p.Mode)
}

func TestPlanUnknownMemoryProceeds(t *testing.T) {
	p := PlanFor("cpu", 1<<30, enabled(memory.Unknown{}, true))
	assert.Equal(t, ModeSafeLayerwise, p.Mode)
	assert.False(t, p.MemoryKnown)
}

func TestPlanSkips(t *testing.T) {
	p := PlanFor("gpu", 10, enabled(memory.Fixed(1<<40), true))
	assert.Equal(t, ModeSkipped, p.Mode)
	assert.Equal(t, "gpu device", p.Reason)

	p = PlanFor("cpu", 10, Options{Enabled: false, Probe: memory.Fixed(1 << 40)})
	assert.Equal(t, ModeSkipped, p.Mode)
	assert.Equal(t, "disabled by configuration", p.Reason)
}

func TestPlanEngineFallback(t *testing.T) {
	opts := enabled(memory.Fixed(1<<40), true)
	opts.Arch = "riscv64"
	p := PlanFor("cpu", 10, opts)
	assert.Equal(t, EngineDefault, p.Engine)
	assert.Equal(t, ModeSafeLayerwise, p.Mode)
	assert.False(t, p.Engine.PerChannel())
}

func TestLayerwiseAndBulkPeakTransient(t *testing.T) {
	const blocks = 4
	for _, safe := range []bool{true, false} {
		m := newTestModel(t, blocks)
		x := []float32{0.1, -0.2, 0.3, -0.4, 0.5, -0.6, 0.7, -0.8}
		want := forwardAll(t, m, x)
		n := CountLinear(m.root)
		require.Equal(t, 2*blocks, n)

		rep := Apply(m, "cpu", enabled(memory.Fixed(1<<40), safe))
		assert.Equal(t, n, rep.Quantized)
		assert.Zero(t, rep.Failed)
		assert.Zero(t, CountLinear(m.root))
		if safe {
			assert.Equal(t, ModeSafeLayerwise, rep.Plan.Mode)
			assert.LessOrEqual(t, rep.PeakTransient, 1)
		} else {
			assert.Equal(t, ModeBulk, rep.Plan.Mode)
			assert.Equal(t, n, rep.PeakTransient)
		}
		assert.Less(t, rep.BytesAfter, rep.BytesBefore)

		got := forwardAll(t, m, x)
		var scale float64
		for _, v := range want {
			if a := math.Abs(float64(v)); a > scale {
				scale = a
			}
		}
		for i := range want {
			assert.InDelta(t, want[i], got[i], 0.1*scale+1e-3)
		}
	}
}

func TestLayerwiseFailureKeepsFloatLayer(t *testing.T) {
	m := newTestModel(t, 2)
	opts := enabled(memory.Fixed(1<<40), true)
	calls := 0
	opts.convert = func(l *nn.Linear, pc bool) (*nn.QuantizedLinear, error) {
		calls++
		switch calls {
		case 2:
			return nil, errors.New("kernel unavailable")
		case 3:
			panic("boom")
		}
		return nn.QuantizeWeights(l, pc)
	}
	rep := Apply(m, "cpu", opts)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 2, rep.Quantized)
	assert.Equal(t, 2, CountLinear(m.root))
	forwardAll(t, m, make([]float32, 8))
}

func TestBulkFailureLeavesModelUntouched(t *testing.T) {
	m := newTestModel(t, 3)
	root := m.root
	opts := enabled(memory.Fixed(1<<40), false)
	calls := 0
	opts.convert = func(l *nn.Linear, pc bool) (*nn.QuantizedLinear, error) {
		calls++
		if calls == 4 {
			return nil, errors.New("out of memory")
		}
		return nn.QuantizeWeights(l, pc)
	}
	rep := Apply(m, "cpu", opts)
	assert.Same(t, root, m.root)
	assert.Zero(t, rep.Quantized)
	assert.Equal(t, 4, rep.Failed)
	assert.Equal(t, 6, CountLinear(m.root))
	forwardAll(t, m, make([]float32, 8))
}

func TestApplyNoDenseLayers(t *testing.T) {
	m := &testModel{root: nn.NewContainer("model", "Model", nn.NewOpaque("weights", "GGUF", 4096))}
	rep := Apply(m, "cpu", enabled(memory.Unknown{}, true))
	assert.Zero(t, rep.Quantized)
	assert.Zero(t, rep.Failed)
	assert.True(t, strings.HasPrefix(string(rep.Plan.Mode), "safe"))
}

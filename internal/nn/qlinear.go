package nn

import (
	"fmt"
	"math"
)

// QuantizedLinear is a dynamically quantized dense layer: int8 weights with
// float32 scales, activations quantized per call, int32 accumulation.
type QuantizedLinear struct {
	name   string
	In     int
	Out    int
	Weight *Tensor // I8 [Out, In]
	Scales *Tensor // F32 [Out] per channel or [1] per tensor
	Bias   *Tensor // F32 [Out], optional
}

// QuantizeWeights converts a float Linear into a QuantizedLinear using
// symmetric scaling. The source layer is left untouched.
func QuantizeWeights(l *Linear, perChannel bool) (*QuantizedLinear, error) {
	if l.Weight.Released() {
		return nil, fmt.Errorf("quantize %s: %w", l.name, ErrReleased)
	}
	w, err := l.Weight.Floats()
	if err != nil {
		return nil, err
	}
	if len(w) != l.In*l.Out {
		return nil, fmt.Errorf("quantize %s: weight has %d elements, want %d", l.name, len(w), l.In*l.Out)
	}
	nScales := 1
	if perChannel {
		nScales = l.Out
	}
	scales := make([]float32, nScales)
	for o := 0; o < l.Out; o++ {
		s := o
		if !perChannel {
			s = 0
		}
		for _, v := range w[o*l.In : (o+1)*l.In] {
			if a := float32(math.Abs(float64(v))); a > scales[s] {
				scales[s] = a
			}
		}
	}
	for i := range scales {
		scales[i] /= 127
		if scales[i] == 0 {
			scales[i] = 1
		}
	}
	q := make([]int8, len(w))
	for o := 0; o < l.Out; o++ {
		s := scales[0]
		if perChannel {
			s = scales[o]
		}
		for i := 0; i < l.In; i++ {
			q[o*l.In+i] = clampInt8(w[o*l.In+i] / s)
		}
	}
	ql := &QuantizedLinear{
		name:   l.name,
		In:     l.In,
		Out:    l.Out,
		Weight: &Tensor{Name: l.Weight.Name, Shape: []int{l.Out, l.In}, DType: I8, I8: q},
		Scales: NewF32(l.Weight.Name+".scale", scales, nScales),
	}
	if l.Bias != nil {
		b, err := l.Bias.Floats()
		if err != nil {
			return nil, err
		}
		ql.Bias = NewF32(l.Bias.Name, append([]float32(nil), b...), l.Out)
	}
	return ql, nil
}

func clampInt8(v float32) int8 {
	r := math.Round(float64(v))
	if r > 127 {
		return 127
	}
	if r < -127 {
		return -127
	}
	return int8(r)
}

func (q *QuantizedLinear) Name() string { return q.name }
func (q *QuantizedLinear) Kind() string { return "DynamicQuantizedLinear" }
func (q *QuantizedLinear) Parameters() []*Tensor {
	if q.Bias == nil {
		return []*Tensor{q.Weight, q.Scales}
	}
	return []*Tensor{q.Weight, q.Scales, q.Bias}
}
func (q *QuantizedLinear) Buffers() []*Tensor { return nil }

// PerChannel reports whether each output row carries its own scale.
func (q *QuantizedLinear) PerChannel() bool { return q.Scales.Numel() > 1 }

func (q *QuantizedLinear) Forward(x []float32) ([]float32, error) {
	if len(x) != q.In {
		return nil, fmt.Errorf("qlinear %s: input has %d features, want %d", q.name, len(x), q.In)
	}
	var amax float32
	for _, v := range x {
		if a := float32(math.Abs(float64(v))); a > amax {
			amax = a
		}
	}
	xs := amax / 127
	if xs == 0 {
		xs = 1
	}
	xq := make([]int8, len(x))
	for i, v := range x {
		xq[i] = clampInt8(v / xs)
	}
	y := make([]float32, q.Out)
	w := q.Weight.I8
	scales := q.Scales.F32
	for o := 0; o < q.Out; o++ {
		var acc int32
		row := w[o*q.In : (o+1)*q.In]
		for i, wv := range row {
			acc += int32(wv) * int32(xq[i])
		}
		ws := scales[0]
		if len(scales) > 1 {
			ws = scales[o]
		}
		y[o] = float32(acc) * ws * xs
		if q.Bias != nil {
			y[o] += q.Bias.F32[o]
		}
	}
	return y, nil
}

// Release drops the int8 storage.
func (q *QuantizedLinear) Release() {
	q.Weight.Release()
	q.Scales.Release()
	q.Bias.Release()
}

package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// ErrReleased is returned when a released layer is asked to compute.
var ErrReleased = errors.New("layer storage released")

// Linear computes y = W x + b with W shaped [Out, In].
type Linear struct {
	name   string
	In     int
	Out    int
	Weight *Tensor
	Bias   *Tensor // optional
}

// NewLinear validates shapes and builds a dense layer.
func NewLinear(name string, weight, bias *Tensor) (*Linear, error) {
	if weight == nil || len(weight.Shape) != 2 {
		return nil, fmt.Errorf("linear %s: weight must be 2-D", name)
	}
	out, in := weight.Shape[0], weight.Shape[1]
	if bias != nil && bias.Numel() != int64(out) {
		return nil, fmt.Errorf("linear %s: bias has %d elements, want %d", name, bias.Numel(), out)
	}
	return &Linear{name: name, In: in, Out: out, Weight: weight, Bias: bias}, nil
}

func (l *Linear) Name() string { return l.name }
func (l *Linear) Kind() string { return "Linear" }
func (l *Linear) Parameters() []*Tensor {
	if l.Bias == nil {
		return []*Tensor{l.Weight}
	}
	return []*Tensor{l.Weight, l.Bias}
}
func (l *Linear) Buffers() []*Tensor { return nil }

func (l *Linear) Forward(x []float32) ([]float32, error) {
	if len(x) != l.In {
		return nil, fmt.Errorf("linear %s: input has %d features, want %d", l.name, len(x), l.In)
	}
	if l.Weight.Released() {
		return nil, fmt.Errorf("linear %s: %w", l.name, ErrReleased)
	}
	w, err := l.Weight.Floats()
	if err != nil {
		return nil, err
	}
	y := make([]float32, l.Out)
	var beta float32
	if l.Bias != nil {
		b, err := l.Bias.Floats()
		if err != nil {
			return nil, err
		}
		copy(y, b)
		beta = 1
	}
	blas32.Gemv(blas.NoTrans, 1,
		blas32.General{Rows: l.Out, Cols: l.In, Stride: l.In, Data: w},
		blas32.Vector{N: l.In, Inc: 1, Data: x},
		beta,
		blas32.Vector{N: l.Out, Inc: 1, Data: y})
	return y, nil
}

// Release drops the weight and bias storage.
func (l *Linear) Release() {
	l.Weight.Release()
	l.Bias.Release()
}

// Embedding maps token ids to rows of a [Vocab, Dim] table.
type Embedding struct {
	name   string
	Vocab  int
	Dim    int
	Weight *Tensor
}

func NewEmbedding(name string, weight *Tensor) (*Embedding, error) {
	if weight == nil || len(weight.Shape) != 2 {
		return nil, fmt.Errorf("embedding %s: weight must be 2-D", name)
	}
	return &Embedding{name: name, Vocab: weight.Shape[0], Dim: weight.Shape[1], Weight: weight}, nil
}

func (e *Embedding) Name() string          { return e.name }
func (e *Embedding) Kind() string          { return "Embedding" }
func (e *Embedding) Parameters() []*Tensor { return []*Tensor{e.Weight} }
func (e *Embedding) Buffers() []*Tensor    { return nil }

// Row returns a copy of the embedding for id.
func (e *Embedding) Row(id int) ([]float32, error) {
	if id < 0 || id >= e.Vocab {
		return nil, fmt.Errorf("embedding %s: id %d out of range [0,%d)", e.name, id, e.Vocab)
	}
	w, err := e.Weight.Floats()
	if err != nil {
		return nil, err
	}
	out := make([]float32, e.Dim)
	copy(out, w[id*e.Dim:(id+1)*e.Dim])
	return out, nil
}

// RMSNorm scales x by the reciprocal root mean square and a learned gain.
type RMSNorm struct {
	name   string
	Eps    float32
	Weight *Tensor
}

func NewRMSNorm(name string, weight *Tensor, eps float32) *RMSNorm {
	return &RMSNorm{name: name, Eps: eps, Weight: weight}
}

func (n *RMSNorm) Name() string          { return n.name }
func (n *RMSNorm) Kind() string          { return "RMSNorm" }
func (n *RMSNorm) Parameters() []*Tensor { return []*Tensor{n.Weight} }
func (n *RMSNorm) Buffers() []*Tensor    { return nil }

func (n *RMSNorm) Forward(x []float32) ([]float32, error) {
	g, err := n.Weight.Floats()
	if err != nil {
		return nil, err
	}
	if len(g) != len(x) {
		return nil, fmt.Errorf("rmsnorm %s: gain has %d elements, input %d", n.name, len(g), len(x))
	}
	var ss float64
	for _, v := range x {
		ss += float64(v) * float64(v)
	}
	inv := float32(1 / math.Sqrt(ss/float64(len(x))+float64(n.Eps)))
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v * inv * g[i]
	}
	return out, nil
}

// SiLU is the x*sigmoid(x) activation.
type SiLU struct{ name string }

func NewSiLU(name string) *SiLU { return &SiLU{name: name} }

func (a *SiLU) Name() string          { return a.name }
func (a *SiLU) Kind() string          { return "SiLU" }
func (a *SiLU) Parameters() []*Tensor { return nil }
func (a *SiLU) Buffers() []*Tensor    { return nil }

func (a *SiLU) Forward(x []float32) ([]float32, error) {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v / (1 + float32(math.Exp(float64(-v))))
	}
	return out, nil
}

// Dropout zeroes a deterministic stripe of activations while training and
// is the identity in inference mode.
type Dropout struct {
	name     string
	P        float32
	Training bool
}

func NewDropout(name string, p float32) *Dropout { return &Dropout{name: name, P: p, Training: true} }

func (d *Dropout) Name() string          { return d.name }
func (d *Dropout) Kind() string          { return "Dropout" }
func (d *Dropout) Parameters() []*Tensor { return nil }
func (d *Dropout) Buffers() []*Tensor    { return nil }
func (d *Dropout) SetTraining(b bool)    { d.Training = b }

func (d *Dropout) Forward(x []float32) ([]float32, error) {
	if !d.Training || d.P <= 0 {
		return x, nil
	}
	keep := 1 - d.P
	stride := int(math.Round(1 / float64(d.P)))
	if stride < 1 {
		stride = 1
	}
	out := make([]float32, len(x))
	for i, v := range x {
		if i%stride == 0 {
			continue
		}
		out[i] = v / keep
	}
	return out, nil
}

// Opaque stands in for weights held outside the Go heap (for example by a
// native runtime). It only reports size.
type Opaque struct {
	name  string
	kind  string
	bytes *Tensor
}

// NewOpaque describes n bytes of externally owned storage.
func NewOpaque(name, kind string, n int64) *Opaque {
	return &Opaque{name: name, kind: kind, bytes: &Tensor{Name: name, Shape: []int{int(n)}, DType: U8}}
}

func (o *Opaque) Name() string          { return o.name }
func (o *Opaque) Kind() string          { return o.kind }
func (o *Opaque) Parameters() []*Tensor { return nil }
func (o *Opaque) Buffers() []*Tensor    { return []*Tensor{o.bytes} }

// Vector is a named buffer or parameter that is not part of a computation
// layer, such as positional mixing weights.
type Vector struct {
	name   string
	Data   *Tensor
	buffer bool
}

// NewBuffer registers t as a non-trainable buffer.
func NewBuffer(name string, t *Tensor) *Vector { return &Vector{name: name, Data: t, buffer: true} }

func (v *Vector) Name() string { return v.name }
func (v *Vector) Kind() string { return "Buffer" }
func (v *Vector) Parameters() []*Tensor {
	if v.buffer {
		return nil
	}
	return []*Tensor{v.Data}
}
func (v *Vector) Buffers() []*Tensor {
	if v.buffer {
		return []*Tensor{v.Data}
	}
	return nil
}

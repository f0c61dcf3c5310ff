package nn

import (
	"encoding/binary"
	"fmt"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType identifies the element type of a tensor.
type DType int

const (
	F32 DType = iota
	BF16
	F16
	I8
	U8
)

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case F32:
		return 4
	case BF16, F16:
		return 2
	default:
		return 1
	}
}

func (d DType) String() string {
	switch d {
	case F32:
		return "float32"
	case BF16:
		return "bfloat16"
	case F16:
		return "float16"
	case I8:
		return "int8"
	case U8:
		return "uint8"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Tensor is a dense, row-major block of numbers. Float32 data lives in F32;
// reduced precision and opaque data lives in Raw (little endian); int8 data in I8.
type Tensor struct {
	Name  string
	Shape []int
	DType DType

	F32 []float32
	Raw []byte
	I8  []int8
}

// NewF32 wraps data as a float32 tensor. len(data) must equal the product of shape.
func NewF32(name string, data []float32, shape ...int) *Tensor {
	return &Tensor{Name: name, Shape: shape, DType: F32, F32: data}
}

// Numel returns the number of elements described by the shape.
func (t *Tensor) Numel() int64 {
	if t == nil {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= int64(d)
	}
	return n
}

// ElementSize returns the size in bytes of one element.
func (t *Tensor) ElementSize() int64 { return int64(t.DType.Size()) }

// NBytes is Numel * ElementSize.
func (t *Tensor) NBytes() int64 {
	if t == nil {
		return 0
	}
	return t.Numel() * t.ElementSize()
}

// Floats returns the tensor contents as float32, decoding reduced precision
// storage. F32 tensors return their backing slice.
func (t *Tensor) Floats() ([]float32, error) {
	switch t.DType {
	case F32:
		return t.F32, nil
	case BF16:
		return bfloat16.DecodeFloat32(t.Raw), nil
	case F16:
		n := len(t.Raw) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Raw[2*i:])).Float32()
		}
		return out, nil
	case I8:
		out := make([]float32, len(t.I8))
		for i, v := range t.I8 {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tensor %s: cannot decode %s as float", t.Name, t.DType)
	}
}

// To converts a float tensor to the given float dtype and returns a new tensor.
func (t *Tensor) To(d DType) (*Tensor, error) {
	if t.DType == d {
		return t, nil
	}
	f, err := t.Floats()
	if err != nil {
		return nil, err
	}
	out := &Tensor{Name: t.Name, Shape: append([]int(nil), t.Shape...), DType: d}
	switch d {
	case F32:
		out.F32 = append([]float32(nil), f...)
	case BF16:
		out.Raw = bfloat16.EncodeFloat32(f)
	case F16:
		out.Raw = make([]byte, 2*len(f))
		for i, v := range f {
			binary.LittleEndian.PutUint16(out.Raw[2*i:], float16.Fromfloat32(v).Bits())
		}
	default:
		return nil, fmt.Errorf("tensor %s: unsupported conversion to %s", t.Name, d)
	}
	return out, nil
}

// Release drops the backing storage. The shape is kept so size reports stay meaningful.
func (t *Tensor) Release() {
	if t == nil {
		return
	}
	t.F32 = nil
	t.Raw = nil
	t.I8 = nil
}

// Released reports whether the storage has been dropped.
func (t *Tensor) Released() bool {
	return t != nil && t.F32 == nil && t.Raw == nil && t.I8 == nil && t.Numel() > 0
}

package weights

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"chatd/internal/nn"
)

// ReadTorch loads a pickled PyTorch state dict (pytorch_model.bin). Only
// float32 and float16 storages are supported; both come back as float32.
func ReadTorch(path string) (map[string]*nn.Tensor, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	out := make(map[string]*nn.Tensor)
	add := func(k, v any) error {
		name, ok := k.(string)
		if !ok {
			return fmt.Errorf("state dict key %v is not a string", k)
		}
		pt, ok := v.(*pytorch.Tensor)
		if !ok {
			// non-tensor entries (for example version counters) are ignored
			return nil
		}
		t, err := fromTorch(name, pt)
		if err != nil {
			return err
		}
		out[name] = t
		return nil
	}

	switch d := obj.(type) {
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := add(entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	case interface {
		Keys() []interface{}
		Get(interface{}) (interface{}, bool)
	}:
		for _, k := range d.Keys() {
			v, _ := d.Get(k)
			if err := add(k, v); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("load %s: unsupported checkpoint root %T", path, obj)
	}
	return out, nil
}

func fromTorch(name string, pt *pytorch.Tensor) (*nn.Tensor, error) {
	var data []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	default:
		return nil, fmt.Errorf("tensor %s: unsupported storage %T", name, pt.Source)
	}
	t := &nn.Tensor{Name: name, Shape: append([]int(nil), pt.Size...), DType: nn.F32}
	n := int(t.Numel())
	if !contiguous(pt.Size, pt.Stride) {
		return nil, fmt.Errorf("tensor %s: non-contiguous layout", name)
	}
	if pt.StorageOffset+n > len(data) {
		return nil, fmt.Errorf("tensor %s: storage too small", name)
	}
	t.F32 = append([]float32(nil), data[pt.StorageOffset:pt.StorageOffset+n]...)
	return t, nil
}

func contiguous(size, stride []int) bool {
	if len(stride) == 0 {
		return true
	}
	want := 1
	for i := len(size) - 1; i >= 0; i-- {
		if size[i] != 1 && stride[i] != want {
			return false
		}
		want *= size[i]
	}
	return true
}

// Package weights reads and writes checkpoint files into nn tensors.
package weights

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"chatd/internal/nn"
)

const maxHeaderBytes = 100 << 20

type stEntry struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func parseDType(s string) (nn.DType, error) {
	switch s {
	case "F32":
		return nn.F32, nil
	case "BF16":
		return nn.BF16, nil
	case "F16":
		return nn.F16, nil
	case "I8":
		return nn.I8, nil
	case "U8":
		return nn.U8, nil
	default:
		return 0, fmt.Errorf("unsupported safetensors dtype %q", s)
	}
}

func dtypeName(d nn.DType) string {
	switch d {
	case nn.F32:
		return "F32"
	case nn.BF16:
		return "BF16"
	case nn.F16:
		return "F16"
	case nn.I8:
		return "I8"
	default:
		return "U8"
	}
}

// ReadSafetensors loads every tensor of a .safetensors file.
func ReadSafetensors(path string) (map[string]*nn.Tensor, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var n uint64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, nil, fmt.Errorf("read header length: %w", err)
	}
	if n == 0 || n > maxHeaderBytes {
		return nil, nil, fmt.Errorf("invalid header length %d", n)
	}
	hdr := make([]byte, n)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(hdr, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse header: %w", err)
	}
	base := int64(8 + n)

	var meta map[string]string
	out := make(map[string]*nn.Tensor, len(raw))
	for name, msg := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(msg, &meta); err != nil {
				return nil, nil, fmt.Errorf("parse metadata: %w", err)
			}
			continue
		}
		var e stEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		dt, err := parseDType(e.DType)
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		t := &nn.Tensor{Name: name, Shape: e.Shape, DType: dt}
		size := e.DataOffsets[1] - e.DataOffsets[0]
		if size != t.NBytes() {
			return nil, nil, fmt.Errorf("tensor %s: %d bytes on disk, shape needs %d", name, size, t.NBytes())
		}
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, base+e.DataOffsets[0]); err != nil {
			return nil, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		switch dt {
		case nn.F32:
			t.F32 = make([]float32, len(buf)/4)
			for i := range t.F32 {
				t.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
			}
		case nn.I8:
			t.I8 = make([]int8, len(buf))
			for i, b := range buf {
				t.I8[i] = int8(b)
			}
		default:
			t.Raw = buf
		}
		out[name] = t
	}
	return out, meta, nil
}

// WriteSafetensors stores tensors sorted by name.
func WriteSafetensors(path string, tensors []*nn.Tensor, meta map[string]string) error {
	sorted := append([]*nn.Tensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(meta) > 0 {
		header["__metadata__"] = meta
	}
	var off int64
	for _, t := range sorted {
		header[t.Name] = stEntry{DType: dtypeName(t.DType), Shape: t.Shape, DataOffsets: [2]int64{off, off + t.NBytes()}}
		off += t.NBytes()
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// Pad to 8 bytes so the data section is aligned.
	for len(hdr)%8 != 0 {
		hdr = append(hdr, ' ')
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(hdr))); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		f.Close()
		return err
	}
	for _, t := range sorted {
		if err := writeData(w, t); err != nil {
			f.Close()
			return fmt.Errorf("tensor %s: %w", t.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeData(w io.Writer, t *nn.Tensor) error {
	switch t.DType {
	case nn.F32:
		if int64(len(t.F32)) != t.Numel() {
			return fmt.Errorf("have %d values for %d elements", len(t.F32), t.Numel())
		}
		var b [4]byte
		for _, v := range t.F32 {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			if _, err := w.Write(b[:]); err != nil {
				return err
			}
		}
		return nil
	case nn.I8:
		buf := make([]byte, len(t.I8))
		for i, v := range t.I8 {
			buf[i] = byte(v)
		}
		_, err := w.Write(buf)
		return err
	default:
		if int64(len(t.Raw)) != t.NBytes() {
			return fmt.Errorf("have %d bytes, shape needs %d", len(t.Raw), t.NBytes())
		}
		_, err := w.Write(t.Raw)
		return err
	}
}

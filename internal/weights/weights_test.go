package weights

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chatd/internal/nn"
)

func TestSafetensorsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f32 := nn.NewF32("a.weight", []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	bf, err := nn.NewF32("b.weight", []float32{0.5, -1}, 2).To(nn.BF16)
	if err != nil {
		t.Fatal(err)
	}
	i8 := &nn.Tensor{Name: "c", Shape: []int{3}, DType: nn.I8, I8: []int8{-127, 0, 5}}
	path := filepath.Join(dir, SafetensorsFile)
	if err := WriteSafetensors(path, []*nn.Tensor{f32, bf, i8}, map[string]string{"format": "pt"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, src, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if src != path {
		t.Fatalf("source=%s", src)
	}
	if diff := cmp.Diff(f32.F32, got["a.weight"].F32); diff != "" {
		t.Fatalf("f32 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3}, got["a.weight"].Shape); diff != "" {
		t.Fatalf("shape mismatch:\n%s", diff)
	}
	if got["b.weight"].DType != nn.BF16 {
		t.Fatalf("dtype=%s", got["b.weight"].DType)
	}
	vals, _ := got["b.weight"].Floats()
	if diff := cmp.Diff([]float32{0.5, -1}, vals); diff != "" {
		t.Fatalf("bf16 mismatch:\n%s", diff)
	}
	if diff := cmp.Diff(i8.I8, got["c"].I8); diff != "" {
		t.Fatalf("i8 mismatch:\n%s", diff)
	}
	_, meta, err := ReadSafetensors(path)
	if err != nil || meta["format"] != "pt" {
		t.Fatalf("meta=%v err=%v", meta, err)
	}
}

func TestReadSafetensorsRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.safetensors")
	if err := os.WriteFile(p, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, '{'}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadSafetensors(p); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	if _, _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestContiguous(t *testing.T) {
	if !contiguous([]int{2, 3}, []int{3, 1}) {
		t.Fatal("row-major should be contiguous")
	}
	if contiguous([]int{2, 3}, []int{1, 2}) {
		t.Fatal("transposed should not be contiguous")
	}
}

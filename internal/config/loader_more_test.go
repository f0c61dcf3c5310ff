package config

import (
	"testing"
)

func TestLoadMalformedFiles(t *testing.T) {
	cases := []struct {
		name, content string
	}{
		{"broken.yaml", "addr: :8080\n: broken\n"},
		{"broken.json", `{ "addr": ":8080", "model_path": }`},
		{"broken.toml", "addr=:8080\nmodel_path\n"},
		{"headroom.yaml", "quant_headroom: lots\n"},
		{"headroom.json", `{"quant_headroom": "lots"}`},
		{"headroom.toml", "quant_headroom = \"lots\"\n"},
		{"int8.json", `{"enable_dynamic_int8": "yes please"}`},
	}
	d := t.TempDir()
	for _, c := range cases {
		p := writeTempFile(t, d, c.name, c.content)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected decode error", c.name)
		}
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/chatd-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

//go:build !llama

package engine

import "testing"

func TestStubRefusesModels(t *testing.T) {
	if Built {
		t.Fatal("stub reports Built")
	}
	b := NewLlama()
	b.BackendInit()
	defer b.BackendFree()
	if m := b.LoadModel("/nonexistent.gguf"); m != 0 {
		t.Fatalf("stub loaded a model: %d", m)
	}
	if c := b.NewContext(0, 16, 1); c != 0 {
		t.Fatalf("stub created a context: %d", c)
	}
}

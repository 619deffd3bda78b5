package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"llamad/internal/controller"
	"llamad/internal/engine"
)

// TestNative_Haiku drives the real engine. It skips unless the binary was
// built with -tags=llama and LLAMAD_TEST_MODEL names a .gguf file.
func TestNative_Haiku(t *testing.T) {
	if !engine.Built {
		t.Skip("built without the llama tag")
	}
	path := os.Getenv("LLAMAD_TEST_MODEL")
	if path == "" {
		t.Skip("LLAMAD_TEST_MODEL not set")
	}
	ctrl := controller.New(controller.Config{Binding: engine.NewLlama(), ContextSize: 512, MaxTokens: 64})
	defer ctrl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := ctrl.Load(ctx, path); err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := ctrl.Generate(ctx, controller.Request{Prompt: "Write a haiku about the ocean.\n"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	text, comp, err := s.Collect()
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if comp.CompletionTokens == 0 || text == "" {
		t.Fatalf("no output: %+v", comp)
	}
	t.Logf("haiku (%s):\n%s", comp.Reason, text)

	if err := ctrl.Unload(ctx); err != nil {
		t.Fatalf("unload: %v", err)
	}
}

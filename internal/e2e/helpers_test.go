package e2e

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"llamad/internal/controller"
	"llamad/internal/engine"
	"llamad/internal/httpapi"
)

// createTempModelsDir creates a temporary directory populated with placeholder
// .gguf files and returns its path.
func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

func newServer(t *testing.T, b engine.Binding, modelsDir string, mut ...func(*controller.Config)) (*httptest.Server, *controller.Controller) {
	t.Helper()
	cfg := controller.Config{Binding: b, Threads: 1}
	for _, m := range mut {
		m(&cfg)
	}
	ctrl := controller.New(cfg)
	srv := httptest.NewServer(httpapi.NewMux(httpapi.ControllerService{Controller: ctrl, ModelsDir: modelsDir}))
	t.Cleanup(func() {
		srv.Close()
		_ = ctrl.Close()
	})
	return srv, ctrl
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

// openStream starts POST /generate and returns the live response.
func openStream(t *testing.T, ctx context.Context, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/generate", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	return resp
}

type line struct {
	Token        *string `json:"token"`
	Done         bool    `json:"done"`
	FinishReason string  `json:"finish_reason"`
	Usage        struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func readLine(t *testing.T, sc *bufio.Scanner) line {
	t.Helper()
	if !sc.Scan() {
		t.Fatalf("stream ended early: %v", sc.Err())
	}
	var l line
	if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
		t.Fatalf("bad line %q: %v", sc.Text(), err)
	}
	return l
}

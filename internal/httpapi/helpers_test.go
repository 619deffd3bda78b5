package httpapi

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"llamad/internal/controller"
	"llamad/internal/engine/enginetest"
)

// newTestService wires a real controller over a fake engine and a models dir
// holding one model file, m.gguf.
func newTestService(t *testing.T, f *enginetest.Fake, cfg controller.Config) (ControllerService, string) {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "m.gguf")
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	cfg.Binding = f
	if cfg.Threads == 0 {
		cfg.Threads = 2
	}
	c := controller.New(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return ControllerService{Controller: c, ModelsDir: dir}, p
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func ndjsonLines(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

// streamText joins the token lines and returns the final done line.
func streamText(t *testing.T, lines []map[string]any) (string, map[string]any) {
	t.Helper()
	if len(lines) == 0 {
		t.Fatalf("empty stream")
	}
	var b strings.Builder
	for _, l := range lines[:len(lines)-1] {
		tok, ok := l["token"].(string)
		if !ok {
			t.Fatalf("not a token line: %v", l)
		}
		b.WriteString(tok)
	}
	done := lines[len(lines)-1]
	if done["done"] != true {
		t.Fatalf("last line is not done: %v", done)
	}
	return b.String(), done
}

func newReq(method, path, body string) *http.Request {
	return httptest.NewRequest(method, path, strings.NewReader(body))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("?log=1 override failed: %v", got)
	}
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
	SetDefaultLogLevel("info")
	defer SetDefaultLogLevel("")
	if got := requestLogLevel(httptest.NewRequest("GET", "/x", nil)); got != LevelInfo {
		t.Fatalf("default level not applied: %v", got)
	}
}

func TestNDJSONLogWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer func() { zlog = nil }()

	lw := &ndjsonLogWriter{rid: "r1"}
	_, _ = lw.Write([]byte(`{"token":"a"}` + "\n" + `{"tok`))
	_, _ = lw.Write([]byte(`en":"b"}` + "\n"))

	out := buf.String()
	if strings.Count(out, `"request_id":"r1"`) != 2 {
		t.Fatalf("expected two log lines: %q", out)
	}
	if !strings.Contains(out, `"line":{"token":"a"}`) || !strings.Contains(out, `"line":{"token":"b"}`) {
		t.Fatalf("missing logged lines: %q", out)
	}
}

func TestLogEnd_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()
	r := httptest.NewRequest("GET", "/x", nil)

	logEnd(r, LevelError, "load", 200, timeNow(), nil)
	if buf.Len() != 0 {
		t.Fatalf("success logged at error level: %q", buf.String())
	}
	logEnd(r, LevelError, "load", 404, timeNow(), errTest)
	if !strings.Contains(buf.String(), `"status":404`) {
		t.Fatalf("failure not logged: %q", buf.String())
	}
}

func TestAbandonedRequestsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	prev := defaultLogLevel
	SetDefaultLogLevel("info")
	defer func() { defaultLogLevel = prev }()

	svc := &mockService{err: context.Canceled, unloadErr: context.Canceled}
	h := NewMux(svc)
	for _, path := range []string{"/load", "/unload"} {
		buf.Reset()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"path":"/m.gguf"}`)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if !strings.Contains(buf.String(), `"status":499`) {
			t.Fatalf("%s: abandoned request not logged: %q", path, buf.String())
		}
	}
}

func TestUnloadFailureIsReported(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	prev := defaultLogLevel
	SetDefaultLogLevel("info")
	defer func() { defaultLogLevel = prev }()

	w := do(t, NewMux(&mockService{unloadErr: errTest}), http.MethodPost, "/unload", `{}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(buf.String(), "unload end") || !strings.Contains(buf.String(), `"status":500`) {
		t.Fatalf("unload failure not logged: %q", buf.String())
	}
}

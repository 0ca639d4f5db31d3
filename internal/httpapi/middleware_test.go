package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"iaeco.app/internal/obs"
)

func TestRateLimitPerClient(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RequestID(RateLimit(ok, 1, 1))

	poll := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	steps := []struct {
		addr string
		want int
	}{
		{"10.0.0.1:1234", http.StatusOK},
		{"10.0.0.1:5678", http.StatusTooManyRequests},
		{"10.0.0.2:1234", http.StatusOK},
	}
	for i, s := range steps {
		rr := poll(s.addr)
		if rr.Code != s.want {
			t.Fatalf("step %d from %s: got %d want %d", i, s.addr, rr.Code, s.want)
		}
		if s.want != http.StatusTooManyRequests {
			continue
		}
		if rr.Header().Get("Retry-After") != "1" {
			t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
		}
		var body struct {
			Error     string `json:"error"`
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode 429 body: %v", err)
		}
		if body.Error == "" || body.RequestID != rr.Header().Get("X-Request-ID") {
			t.Fatalf("unexpected 429 body %+v", body)
		}
	}
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "watch-probe-7")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "watch-probe-7" || rr.Header().Get("X-Request-ID") != "watch-probe-7" {
		t.Fatalf("caller id lost: ctx=%q header=%q", seen, rr.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("oversized id should be replaced, got %q", seen)
	}
}

func TestLoggingJSONRecordsStatus(t *testing.T) {
	logger := obs.Logger()
	prev := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(prev)

	handler := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"ts", "level", "request_id", "method", "path", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing %q in %v", key, entry)
		}
	}
	if entry["msg"] != "request_complete" || entry["path"] != "/readyz" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["status"] != float64(http.StatusServiceUnavailable) {
		t.Fatalf("status = %v", entry["status"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Fatalf("%s = %q, want %q", k, got, v)
		}
	}
}

package httpserver

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/yndnr/vos-go/internal/telemetry/logger"
	"github.com/yndnr/vos-go/internal/telemetry/metric"
	"github.com/yndnr/vos-go/pkg/token"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		requestID := rec.Header().Get("X-Request-ID")
		if !strings.HasPrefix(requestID, "req-") {
			t.Errorf("expected request ID to start with 'req-', got %s", requestID)
		}
		if seen != requestID {
			t.Errorf("context request ID = %q, header = %q", seen, requestID)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "existing-id-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "existing-id-123" {
			t.Errorf("expected 'existing-id-123', got %s", got)
		}
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req-") {
			t.Errorf("oversized id kept: %s", got)
		}
	})
}

func TestChain(t *testing.T) {
	var order []int
	mark := func(n int) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, n)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, 0)
	}), mark(1), mark(2), mark(3))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []int{1, 2, 3, 0}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		path      string
		remote    string
		want      int
	}{
		{"empty allowlist", nil, "/admin/v1/pool", "192.168.1.100:1234", http.StatusOK},
		{"matching IP", []string{"192.168.1.100"}, "/admin/v1/pool", "192.168.1.100:1234", http.StatusOK},
		{"matching CIDR", []string{"10.0.0.0/8"}, "/admin/v1/pool", "10.1.2.3:1234", http.StatusOK},
		{"IPv6", []string{"::1"}, "/admin/v1/pool", "[::1]:1234", http.StatusOK},
		{"denied", []string{"10.0.0.0/8"}, "/admin/v1/pool", "192.168.1.1:1234", http.StatusForbidden},
		{"non admin path", []string{"10.0.0.0/8"}, "/health", "192.168.1.1:1234", http.StatusOK},
		{"invalid entries only", []string{"bogus", "1.2.3.4/99"}, "/admin/v1/pool", "192.168.1.1:1234", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NetworkACL(&NetworkACLConfig{AllowList: tt.allowList, Logger: logger.Discard()})(okHandler())
			req := httptest.NewRequest("GET", tt.path, nil)
			req.RemoteAddr = tt.remote
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		path   string
		header string
		want   int
	}{
		{"no token configured", "", "/admin/v1/pool", "", http.StatusOK},
		{"valid bearer", "s3cret", "/admin/v1/pool", "Bearer s3cret", http.StatusOK},
		{"scheme case", "s3cret", "/admin/v1/pool", "bearer s3cret", http.StatusOK},
		{"missing header", "s3cret", "/admin/v1/pool", "", http.StatusUnauthorized},
		{"wrong token", "s3cret", "/admin/v1/pool", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "s3cret", "/admin/v1/pool", "Basic s3cret", http.StatusUnauthorized},
		{"health is open", "s3cret", "/health", "", http.StatusOK},
		{"hashed config", token.Hash("s3cret"), "/admin/v1/pool", "Bearer s3cret", http.StatusOK},
		{"hash is not a token", token.Hash("s3cret"), "/admin/v1/pool", "Bearer " + token.Hash("s3cret"), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AdminAuth(tt.token)(okHandler())
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if rec.Code == http.StatusUnauthorized && rec.Header().Get("X-Error-Code") == "" {
				t.Error("missing X-Error-Code")
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	reg := metric.NewRegistry()
	h := RateLimit(1, 2, reg)(okHandler())

	send := func(remote string) int {
		req := httptest.NewRequest("GET", "/admin/v1/pool", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("10.0.0.1:1"); got != http.StatusOK {
		t.Fatalf("first request = %d", got)
	}
	if got := send("10.0.0.1:2"); got != http.StatusOK {
		t.Fatalf("second request = %d", got)
	}
	if got := send("10.0.0.1:3"); got != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", got)
	}
	if got := send("10.0.0.2:1"); got != http.StatusOK {
		t.Errorf("other client = %d, want 200", got)
	}

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var limited float64
	for _, mf := range families {
		if mf.GetName() == "vos_http_rate_limited_total" {
			limited = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if limited != 1 {
		t.Errorf("rate_limited_total = %v, want 1", limited)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0, 0, nil)(okHandler())
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
}

func TestRateLimitConcurrency(t *testing.T) {
	h := RateLimit(1000, 1000, nil)(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				req := httptest.NewRequest("GET", "/", nil)
				req.RemoteAddr = "10.0.0.1:1234"
				h.ServeHTTP(httptest.NewRecorder(), req)
			}
		}()
	}
	wg.Wait()
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID(), Recover(logger.Discard()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"request_id":"req-`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAudit(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), RequestID(), Audit(log))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/admin/v1/containers/x", nil))

	out := buf.String()
	for _, want := range []string{"level=WARN", "status=404", "path=/admin/v1/containers/x", "request_id=req-"} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %q: %s", want, out)
		}
	}
}

func TestMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Metrics(reg)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/items/7", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	routes := make(map[string]string)
	for _, mf := range families {
		if mf.GetName() != "vos_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			routes[labels["route"]] = labels["code"]
		}
	}
	if routes["GET /items/{id}"] != "418" {
		t.Errorf("routes = %v", routes)
	}
	if routes["unmatched"] != "404" {
		t.Errorf("routes = %v", routes)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"X-Forwarded-For", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "192.168.1.1:12345", "10.0.0.1"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "10.0.0.1"}, "192.168.1.1:12345", "10.0.0.1"},
		{"RemoteAddr", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"IPv6 RemoteAddr", nil, "[::1]:8080", "::1"},
		{"no port", nil, "192.168.1.1", "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remote
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusInternalServerError)
	if w.statusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want first status", w.statusCode)
	}
	if w.Unwrap() != rec {
		t.Error("Unwrap() did not return the recorder")
	}
}

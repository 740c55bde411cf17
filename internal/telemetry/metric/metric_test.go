package metric

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.SetBuildInfo("v1.2.3", "abc123")
	r.RequestsTotal.WithLabelValues("GET", "/health", "200").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`vos_build_info{commit="abc123",version="v1.2.3"} 1`,
		`vos_http_requests_total{code="200",method="GET",route="/health"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestCollector(t *testing.T) {
	tests := []struct {
		name      string
		snap      Snapshot
		err       error
		wantUsed  bool
		wantError float64
	}{
		{"snapshot", Snapshot{PoolUsed: 42, PoolSize: 100, ContHandles: 2}, nil, true, 0},
		{"source error", Snapshot{}, errors.New("closed"), false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			reg.MustRegister(NewCollector(func() (Snapshot, error) { return tt.snap, tt.err }))

			families, err := reg.Gather()
			if err != nil {
				t.Fatal(err)
			}
			values := make(map[string]float64)
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					name := mf.GetName()
					for _, lp := range m.GetLabel() {
						name += "/" + lp.GetValue()
					}
					if g := m.GetGauge(); g != nil {
						values[name] = g.GetValue()
					}
					if c := m.GetCounter(); c != nil {
						values[name] = c.GetValue()
					}
				}
			}

			if _, ok := values["vos_pool_used_bytes"]; ok != tt.wantUsed {
				t.Fatalf("pool used present = %v, want %v", ok, tt.wantUsed)
			}
			if tt.wantUsed {
				if values["vos_pool_used_bytes"] != 42 || values["vos_open_handles/container"] != 2 {
					t.Errorf("values = %v", values)
				}
			}
			if values["vos_collector_errors_total"] != tt.wantError {
				t.Errorf("collector errors = %v, want %v", values["vos_collector_errors_total"], tt.wantError)
			}
		})
	}
}

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/florinutz/binsync/health"
)

func get(t *testing.T, srv *http.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMetricsServer_Routes(t *testing.T) {
	checker := health.NewChecker()
	checker.Register(health.ComponentSource)
	srv := NewMetricsServer(":0", checker)

	if rec := get(t, srv, "/metrics"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("/metrics = %d", rec.Code)
	}
	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/healthz with a down component = %d, want 503", rec.Code)
	}
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before streaming = %d, want 503", rec.Code)
	}

	checker.SetStatus(health.ComponentSource, health.StatusUp)
	checker.SetState("streaming", true)
	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}
	if rec := get(t, srv, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz while streaming = %d, want 200", rec.Code)
	}
}

func TestMetricsServer_NoChecker(t *testing.T) {
	srv := NewMetricsServer(":0", nil)
	if rec := get(t, srv, "/healthz"); rec.Code != http.StatusNotFound {
		t.Errorf("/healthz without checker = %d, want 404", rec.Code)
	}
}

package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/registry"
	"github.com/dalbodeule/entrygate/internal/route"
)

type fakeSource struct {
	reg     *registry.Registry
	routes  []route.Rule
	upgrade []route.Rule
}

func (f fakeSource) Registry() *registry.Registry { return f.reg }
func (f fakeSource) Routes() []route.Rule         { return f.routes }
func (f fakeSource) UpgradeRoutes() []route.Rule  { return f.upgrade }

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	reg, err := registry.New(map[string]string{
		"service1": "http://127.0.0.1:5000",
		"ws":       "ws://127.0.0.1:5001",
	})
	if err != nil {
		t.Fatal(err)
	}
	svc1, _ := reg.Lookup("service1")
	ws, _ := reg.Lookup("ws")

	h := NewHandler(logging.Nop(), fakeSource{
		reg: reg,
		routes: []route.Rule{
			{Prefix: "/api/service1", Mode: route.ModeStrip, Target: svc1, Streaming: true, Timeout: time.Minute},
		},
		upgrade: []route.Rule{
			{Prefix: "/api/ws", Mode: route.ModeSubstitute, Replacement: "/ws", Target: ws},
		},
	})
	h.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestHealthz(t *testing.T) {
	mux := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "{\"success\":true}\n" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoutesDump(t *testing.T) {
	mux := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/routes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp routesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Services) != 2 || resp.Services[0].Name != "service1" || resp.Services[1].Addr != "127.0.0.1:5001" {
		t.Fatalf("services: %+v", resp.Services)
	}
	if len(resp.Routes) != 1 || resp.Routes[0].Mode != "strip" || resp.Routes[0].Timeout != "1m0s" {
		t.Fatalf("routes: %+v", resp.Routes)
	}
	if len(resp.UpgradeRoutes) != 1 || resp.UpgradeRoutes[0].Replacement != "/ws" || resp.UpgradeRoutes[0].Mode != "substitute" {
		t.Fatalf("upgrade routes: %+v", resp.UpgradeRoutes)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t)
	for _, p := range []string{"/healthz", "/routes", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, p, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s = %d", p, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

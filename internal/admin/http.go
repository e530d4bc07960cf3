package admin

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/registry"
	"github.com/dalbodeule/entrygate/internal/route"
)

// RouteSource 는 관리 API 가 읽기 전용으로 노출할 라우팅 상태입니다.
// *proxy.Gateway 가 이 인터페이스를 만족합니다.
type RouteSource interface {
	Registry() *registry.Registry
	Routes() []route.Rule
	UpgradeRoutes() []route.Rule
}

// Handler 는 트래픽 포트와 분리된 관리 plane HTTP 엔드포인트를 제공합니다.
type Handler struct {
	Logger logging.Logger
	Source RouteSource
	// Metrics 가 nil 이면 전역 Prometheus 레지스트리를 노출합니다.
	Metrics http.Handler
}

// NewHandler 는 새로운 Handler 를 생성합니다.
func NewHandler(logger logging.Logger, src RouteSource) *Handler {
	return &Handler{
		Logger:  logger.With(logging.Fields{"component": "admin_api"}),
		Source:  src,
		Metrics: promhttp.Handler(),
	}
}

// RegisterRoutes 는 전달받은 mux 에 관리 API 라우트를 등록합니다.
//   - GET /healthz
//   - GET /routes
//   - GET /metrics
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/routes", h.handleRoutes)
	mux.Handle("/metrics", h.getOnly(h.Metrics))
}

type healthResponse struct {
	Success bool `json:"success"`
}

type serviceView struct {
	Name   string `json:"name"`
	Scheme string `json:"scheme"`
	Addr   string `json:"addr"`
}

type ruleView struct {
	Prefix      string `json:"prefix"`
	Mode        string `json:"mode"`
	Replacement string `json:"replacement,omitempty"`
	Service     string `json:"service"`
	Streaming   bool   `json:"streaming,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

type routesResponse struct {
	Success       bool          `json:"success"`
	Services      []serviceView `json:"services"`
	Routes        []ruleView    `json:"routes"`
	UpgradeRoutes []ruleView    `json:"upgrade_routes"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.writeMethodNotAllowed(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Success: true})
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeMethodNotAllowed(w, r)
		return
	}

	resp := routesResponse{
		Success:       true,
		Services:      []serviceView{},
		Routes:        toRuleViews(h.Source.Routes()),
		UpgradeRoutes: toRuleViews(h.Source.UpgradeRoutes()),
	}
	for _, s := range h.Source.Registry().Services() {
		resp.Services = append(resp.Services, serviceView{
			Name:   s.Name,
			Scheme: string(s.Scheme),
			Addr:   s.Addr(),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func toRuleViews(rules []route.Rule) []ruleView {
	out := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		v := ruleView{
			Prefix:    r.Prefix,
			Mode:      r.Mode.String(),
			Service:   r.Target.Name,
			Streaming: r.Streaming,
		}
		if r.Mode == route.ModeSubstitute {
			v.Replacement = r.Replacement
		}
		if r.Timeout > 0 {
			v.Timeout = r.Timeout.String()
		}
		out = append(out, v)
	}
	return out
}

func (h *Handler) getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			h.writeMethodNotAllowed(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"success": false,
		"error":   "method not allowed",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to write json response", logging.Fields{"error": err.Error()})
	}
}

package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 전역 레지스트리에 등록할 게이트웨이 메트릭들을 정의합니다.
// 메트릭 이름에는 entrygate_ 접두어를 붙입니다.

var (
	// 트래픽 리스너로 들어온 일반 HTTP 요청 수 (메서드/상태 코드 라벨 포함).
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrygate_http_requests_total",
			Help: "Total number of ordinary HTTP requests handled by the gateway, labeled by method and status code.",
		},
		[]string{"method", "status"},
	)

	// HTTP 요청 처리 시간 분포 (메서드 라벨 포함). SSE 응답은 스트림 종료 시점에 기록됩니다.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entrygate_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies in seconds, labeled by method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Dispatcher 가 요청을 어디로 보냈는지.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrygate_dispatch_total",
			Help: "Total number of dispatch decisions, labeled by outcome.",
		},
		[]string{"outcome"}, // proxy, static, fallback, api_not_found
	)

	// 업그레이드 요청 처리 결과.
	UpgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrygate_upgrades_total",
			Help: "Total number of protocol upgrade requests, labeled by result.",
		},
		[]string{"result"}, // tunneled, rejected, backend_unreachable, hijack_failed
	)

	// 현재 열린 터널 세션 수.
	TunnelsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "entrygate_tunnels_active",
			Help: "Number of tunnel sessions currently relaying bytes.",
		},
	)

	// 터널을 통해 전달된 바이트 수.
	TunnelBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrygate_tunnel_bytes_total",
			Help: "Total bytes relayed by tunnel sessions, labeled by direction.",
		},
		[]string{"direction"}, // upstream (client -> backend), downstream (backend -> client)
	)

	// Proxy 에러 카운터 (에러 유형 라벨 포함).
	ProxyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entrygate_proxy_errors_total",
			Help: "Total number of proxy-related errors, labeled by error type.",
		},
		[]string{"type"}, // backend_unreachable, backend_timeout, tunnel_io
	)
)

var registerOnce sync.Once

// MustRegister 는 위에서 정의한 메트릭들을 전역 Prometheus 레지스트리에 등록합니다.
// 여러 번 호출해도 한 번만 등록됩니다.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			DispatchTotal,
			UpgradesTotal,
			TunnelsActive,
			TunnelBytesTotal,
			ProxyErrorsTotal,
		)
	})
}

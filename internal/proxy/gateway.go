package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"

	"github.com/dalbodeule/entrygate/internal/config"
	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/registry"
	"github.com/dalbodeule/entrygate/internal/route"
	"github.com/dalbodeule/entrygate/internal/static"
)

var (
	// ErrUpgradeRejected 는 업그레이드 경로가 어떤 규칙에도 매치되지 않았을 때의 결과입니다.
	ErrUpgradeRejected = errors.New("upgrade rejected")

	// ErrBackendUnreachable 는 선택된 백엔드에 연결하지 못했을 때의 결과입니다. 재시도하지 않습니다.
	ErrBackendUnreachable = errors.New("backend unreachable")
)

const requestIDHeader = "X-Request-Id"

// Options 는 Gateway 를 구성하는 시작 시점 값들입니다.
type Options struct {
	Registry      *registry.Registry
	Routes        []route.Rule // 일반 HTTP 규칙, 선언 순서대로
	UpgradeRoutes []route.Rule // 업그레이드 규칙, 선언 순서대로
	Static        *static.Server
	APIPrefix     string
	DialTimeout   time.Duration
	Logger        logging.Logger
}

// Gateway 는 시작 시점에 한 번 만들어져 Dispatcher 와 Interceptor 가 공유하는 컨텍스트 객체입니다.
// 생성 이후 변경되지 않으므로 잠금 없이 동시에 사용할 수 있습니다.
//
// Gateway is the root handler of the traffic listener. Every request is classified
// as upgrade-or-not before any other handler sees it. (en)
type Gateway struct {
	registry   *registry.Registry
	dispatcher *Dispatcher
	http       http.Handler // 계측이 씌워진 dispatcher
	upgrades   *Interceptor
	logger     logging.Logger
}

// New 는 Options 로 Gateway 를 생성합니다.
func New(opts Options) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, errors.New("proxy: registry is required")
	}
	if opts.Static == nil {
		return nil, errors.New("proxy: static server is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewStdJSONLogger("gateway")
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	d := newDispatcher(opts)
	return &Gateway{
		registry:   opts.Registry,
		dispatcher: d,
		http:       instrument(d),
		upgrades:   newInterceptor(opts),
		logger:     opts.Logger,
	}, nil
}

// FromConfig 는 설정을 해석해 Gateway 를 만듭니다.
// 등록되지 않은 서비스를 참조하는 규칙이 있으면 registry.ErrUnknownService 로 실패하며,
// 이 경우 프로세스는 시작하지 않아야 합니다.
func FromConfig(cfg *config.GatewayConfig, logger logging.Logger) (*Gateway, error) {
	reg, err := registry.New(cfg.Services)
	if err != nil {
		return nil, err
	}
	routes, err := route.Resolve(cfg.Routes, reg, route.Options{
		Scheme:    registry.SchemeHTTP,
		Bounded:   true,
		Streaming: true,
	})
	if err != nil {
		return nil, fmt.Errorf("http routes: %w", err)
	}
	upgradeRoutes, err := route.Resolve(cfg.UpgradeRoutes, reg, route.Options{
		Scheme: registry.SchemeWS,
	})
	if err != nil {
		return nil, fmt.Errorf("upgrade routes: %w", err)
	}
	st, err := static.New(cfg.StaticDir, cfg.EntryFile)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Registry:      reg,
		Routes:        routes,
		UpgradeRoutes: upgradeRoutes,
		Static:        st,
		APIPrefix:     cfg.APIPrefix,
		DialTimeout:   cfg.DialTimeout,
		Logger:        logger,
	})
}

// ServeHTTP 는 리스너 수준의 두 갈래 분기입니다.
// 업그레이드 요청은 Interceptor 로, 나머지는 Dispatcher 로 보냅니다.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ensureRequestID(r)

	if isUpgradeRequest(r) {
		g.upgrades.ServeHTTP(w, r)
		return
	}
	g.http.ServeHTTP(w, r)
}

// Registry returns the read-only target registry.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Routes returns the HTTP rule table in declaration order.
func (g *Gateway) Routes() []route.Rule { return g.dispatcher.routes.Rules() }

// UpgradeRoutes returns the upgrade rule table in declaration order.
func (g *Gateway) UpgradeRoutes() []route.Rule { return g.upgrades.routes.Rules() }

// isUpgradeRequest 는 Connection: upgrade 토큰과 Upgrade 헤더가 모두 있는 요청을 업그레이드로 봅니다.
// WebSocket 이 아닌 프로토콜(h2c 등)도 업그레이드 경로로 분류되어 규칙에 없으면 거부됩니다.
func isUpgradeRequest(r *http.Request) bool {
	if r.ProtoMajor != 1 {
		return false
	}
	return httpguts.HeaderValuesContainsToken(r.Header["Connection"], "upgrade") &&
		strings.TrimSpace(r.Header.Get("Upgrade")) != ""
}

func ensureRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
		r.Header.Set(requestIDHeader, id)
	}
	return id
}

func requestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

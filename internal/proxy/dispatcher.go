package proxy

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"github.com/dalbodeule/entrygate/internal/errorpages"
	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/observability"
	"github.com/dalbodeule/entrygate/internal/route"
	"github.com/dalbodeule/entrygate/internal/static"
)

// StatusClientClosedRequest 는 응답 전에 클라이언트가 연결을 끊은 경우 기록하는 상태 코드입니다.
const StatusClientClosedRequest = 499

// Dispatcher 는 일반(비 업그레이드) 요청에 대한 순서가 고정된 규칙 체인입니다.
//
//  1. 프록시 규칙 (선언 순서, 첫 매치)
//  2. 정적 파일
//  3. API not-found JSON (API prefix 인 경우)
//  4. SPA 엔트리 fallback (그 외 모든 경로)
type Dispatcher struct {
	routes    *route.Table
	proxies   []*httputil.ReverseProxy // routes 와 같은 인덱스
	static    *static.Server
	apiPrefix string
	logger    logging.Logger
}

func newDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger.With(logging.Fields{"component": "dispatcher"})
	transport := newTransport(opts.DialTimeout)

	d := &Dispatcher{
		routes:    route.NewTable(opts.Routes),
		static:    opts.Static,
		apiPrefix: opts.APIPrefix,
		logger:    logger,
	}
	for _, rule := range d.routes.Rules() {
		d.proxies = append(d.proxies, newRouteProxy(rule, transport, logger))
	}
	return d
}

// newTransport 는 모든 HTTP 규칙이 공유하는 커넥션 풀입니다.
// 스트리밍 응답을 끊지 않도록 응답 헤더/본문 타임아웃은 두지 않습니다.
func newTransport(dialTimeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// 백엔드 응답 본문을 그대로 전달해야 하므로 투명 압축 해제를 끕니다.
		DisableCompression: true,
	}
}

func newRouteProxy(rule route.Rule, transport http.RoundTripper, logger logging.Logger) *httputil.ReverseProxy {
	target := rule.Target.URL()
	rlog := logger.With(logging.Fields{"route": rule.Prefix, "service": rule.Target.Name})

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target) // Host 헤더도 대상 주소로 바뀝니다.
			pr.Out.URL.Path, pr.Out.URL.RawPath = route.RewriteURL(rule, pr.In.URL)
			pr.SetXForwarded()
		},
		Transport:      transport,
		ModifyResponse: normalizeStreamingHeaders,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			handleProxyError(w, r, err, rlog)
		},
		ErrorLog: log.New(logWriter{rlog}, "", 0),
	}
	if rule.Streaming {
		// 음수는 매 Write 마다 즉시 flush 합니다.
		rp.FlushInterval = -1
	}
	return rp
}

func handleProxyError(w http.ResponseWriter, r *http.Request, err error, logger logging.Logger) {
	fields := logging.Fields{
		"request_id": requestID(r),
		"method":     r.Method,
		"path":       r.URL.Path,
		"error":      err.Error(),
	}

	ctxErr := r.Context().Err()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctxErr, context.DeadlineExceeded):
		observability.ProxyErrorsTotal.WithLabelValues("backend_timeout").Inc()
		logger.Warn("backend request timed out", fields)
		errorpages.Render(w, errorpages.StatusGatewayTimeout, "", requestID(r))
	case errors.Is(err, context.Canceled) || errors.Is(ctxErr, context.Canceled):
		// 클라이언트가 먼저 연결을 끊었습니다. 읽을 사람이 없으므로 본문은 쓰지 않습니다.
		logger.Debug("client canceled proxied request", fields)
		w.WriteHeader(StatusClientClosedRequest)
	default:
		observability.ProxyErrorsTotal.WithLabelValues("backend_unreachable").Inc()
		logger.Error("backend request failed", fields)
		errorpages.Render(w, errorpages.StatusBadGateway, ErrBackendUnreachable.Error(), requestID(r))
	}
}

// ServeHTTP 는 규칙 체인을 순서대로 평가합니다.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path

	// 1. 프록시 규칙. 매치되면 결과와 상관없이 여기서 끝납니다 (정적 파일로 넘어가지 않음).
	if rule, idx, ok := d.routes.Match(p); ok {
		observability.DispatchTotal.WithLabelValues("proxy").Inc()
		if rule.Timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), rule.Timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		d.proxies[idx].ServeHTTP(w, r)
		return
	}

	// 2. 정적 파일 (일반 파일만, 디렉터리 제외)
	err := d.static.ServeFile(w, r)
	if err == nil {
		observability.DispatchTotal.WithLabelValues("static").Inc()
		return
	}
	if !errors.Is(err, static.ErrAssetMissing) {
		d.logger.Warn("static lookup failed", logging.Fields{
			"request_id": requestID(r),
			"path":       p,
			"error":      err.Error(),
		})
	}

	// 3. API prefix 는 절대 SPA 엔트리로 fallback 하지 않습니다.
	if strings.HasPrefix(p, d.apiPrefix) {
		observability.DispatchTotal.WithLabelValues("api_not_found").Inc()
		errorpages.Render(w, http.StatusNotFound, "", requestID(r))
		return
	}

	// 4. SPA fallback
	observability.DispatchTotal.WithLabelValues("fallback").Inc()
	if err := d.static.ServeEntry(w, r); err != nil {
		d.logger.Error("failed to serve spa entry", logging.Fields{
			"request_id": requestID(r),
			"error":      err.Error(),
		})
		errorpages.Render(w, http.StatusInternalServerError, "spa entry unavailable", requestID(r))
	}
}

// instrument 는 일반 요청의 상태 코드와 처리 시간을 기록합니다.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			observability.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
			observability.HTTPRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}

// Unwrap 은 http.ResponseController 가 Flush 를 원래 writer 로 전달할 수 있게 합니다.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// logWriter 는 httputil.ReverseProxy 의 내부 로그를 구조적 로거로 보냅니다.
type logWriter struct {
	logger logging.Logger
}

func (l logWriter) Write(p []byte) (int, error) {
	l.logger.Warn("reverse proxy", logging.Fields{"detail": strings.TrimSpace(string(p))})
	return len(p), nil
}

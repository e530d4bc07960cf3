package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dalbodeule/entrygate/internal/errorpages"
	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/observability"
	"github.com/dalbodeule/entrygate/internal/route"
	"github.com/dalbodeule/entrygate/internal/tunnel"
)

// Interceptor 는 프로토콜 업그레이드 요청을 일반 HTTP 처리보다 먼저 받아서
// 터널링할지 거부할지 결정합니다.
//
// 상태: Received -> Classified -> {Tunneling | Rejected}
//
// 업그레이드를 시작한 뒤에는 정상적인 HTTP 에러 응답으로 되돌릴 방법이 없으므로,
// 거부나 백엔드 연결 실패는 모두 응답 없이 소켓을 닫는 것으로 처리합니다.
type Interceptor struct {
	routes *route.Table
	dialer *net.Dialer
	logger logging.Logger
}

func newInterceptor(opts Options) *Interceptor {
	return &Interceptor{
		routes: route.NewTable(opts.UpgradeRoutes),
		dialer: &net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		},
		logger: opts.Logger.With(logging.Fields{"component": "upgrade"}),
	}
}

// ServeHTTP 는 업그레이드 요청 하나를 끝까지 처리합니다. 터널이 닫힐 때까지 반환하지 않습니다.
func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := i.logger.With(logging.Fields{
		"request_id": requestID(r),
		"path":       r.URL.Path,
		"upgrade":    r.Header.Get("Upgrade"),
		"remote":     r.RemoteAddr,
	})
	log.Debug("upgrade request received", nil)

	// Classified
	rule, _, matched := i.routes.Match(r.URL.Path)

	client, buffered, err := http.NewResponseController(w).Hijack()
	if err != nil {
		// 아직 소켓을 넘겨받지 못했으므로 일반 응답을 쓸 수 있습니다.
		observability.UpgradesTotal.WithLabelValues("hijack_failed").Inc()
		log.Error("failed to hijack upgrade connection", logging.Fields{"error": err.Error()})
		errorpages.Render(w, http.StatusInternalServerError, "upgrade not supported", requestID(r))
		return
	}
	// 서버가 걸어 둔 read/write deadline 을 해제합니다. 터널은 유휴 상태로 오래 유지될 수 있습니다.
	_ = client.SetDeadline(time.Time{})

	// Rejected
	if reason := rejectReason(r, matched); reason != "" {
		_ = client.Close()
		observability.UpgradesTotal.WithLabelValues("rejected").Inc()
		log.Info("upgrade rejected", logging.Fields{
			"error":  ErrUpgradeRejected.Error(),
			"reason": reason,
		})
		return
	}

	// Tunneling
	outURL := *r.URL
	outURL.Path, outURL.RawPath = route.RewriteURL(rule, r.URL)
	log = log.With(logging.Fields{
		"route":    rule.Prefix,
		"service":  rule.Target.Name,
		"target":   rule.Target.Addr(),
		"rewrite":  outURL.EscapedPath(),
		"buffered": buffered.Reader.Buffered(),
	})

	backend, err := i.connect(r.Context(), rule, r, &outURL, buffered.Reader)
	if err != nil {
		_ = client.Close()
		observability.UpgradesTotal.WithLabelValues("backend_unreachable").Inc()
		observability.ProxyErrorsTotal.WithLabelValues("backend_unreachable").Inc()
		log.Error("upgrade backend connect failed", logging.Fields{"error": err.Error()})
		return
	}
	observability.UpgradesTotal.WithLabelValues("tunneled").Inc()

	sess := tunnel.New(uuid.NewString(), client, backend, log)
	log.Info("upgrade tunneled", logging.Fields{"session_id": sess.ID})

	// 서버 종료로 base context 가 취소되면 터널도 닫습니다.
	stop := context.AfterFunc(r.Context(), sess.Close)
	defer stop()

	sess.Run()
}

// connect 는 백엔드에 연결하고 재작성된 요청 헤더와 이미 버퍼링된 바이트를 재전송합니다.
// 성공하면 곧바로 터널에 넘길 수 있는 백엔드 연결을, 실패하면 ErrBackendUnreachable 로
// 감싼 에러를 반환합니다. 재시도하지 않습니다.
func (i *Interceptor) connect(ctx context.Context, rule route.Rule, in *http.Request, outURL *url.URL, pending *bufio.Reader) (net.Conn, error) {
	backend, err := i.dialer.DialContext(ctx, "tcp", rule.Target.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	if err := writeUpgradeRequest(backend, in, rule, outURL, pending); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("%w: replay: %v", ErrBackendUnreachable, err)
	}
	return backend, nil
}

// writeUpgradeRequest 는 원래 요청을 경로만 바꿔 백엔드로 다시 씁니다.
// 헤더 뒤에는 업그레이드 감지 전에 이미 읽혀 버퍼에 남아 있던 바이트를 순서 그대로 이어 붙입니다.
// 본문이 있는 요청은 rejectReason 에서 이미 걸러졌습니다.
func writeUpgradeRequest(backend net.Conn, in *http.Request, rule route.Rule, outURL *url.URL, pending *bufio.Reader) error {
	out := in.Clone(context.Background())
	u := *outURL
	out.URL = &u
	out.RequestURI = ""
	out.Host = rule.Target.Addr()
	out.Body = nil
	out.ContentLength = 0
	setForwardedHeaders(out.Header, in)

	bw := bufio.NewWriter(backend)
	if err := out.Write(bw); err != nil {
		return err
	}
	if n := pending.Buffered(); n > 0 {
		b, err := pending.Peek(n)
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if _, err := pending.Discard(n); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// rejectReason 은 터널링하지 않을 업그레이드 요청의 거부 사유를 반환합니다. 빈 문자열이면 터널링합니다.
func rejectReason(r *http.Request, matched bool) string {
	switch {
	case !matched:
		return "no matching upgrade route"
	case !websocket.IsWebSocketUpgrade(r):
		// 업그레이드 규칙은 ws 서비스만 가리킵니다. h2c 등 다른 프로토콜은 넘기지 않습니다.
		return "not a websocket upgrade"
	case r.ContentLength != 0 || len(r.TransferEncoding) > 0:
		// WebSocket 핸드셰이크는 본문을 갖지 않습니다.
		return "upgrade request carries a body"
	}
	return ""
}

func setForwardedHeaders(h http.Header, in *http.Request) {
	if ip, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
			ip = strings.Join(prior, ", ") + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", in.Host)
	if in.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}
}

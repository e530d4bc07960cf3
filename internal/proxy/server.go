package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/dalbodeule/entrygate/internal/logging"
)

// Server 는 단일 트래픽 리스너의 생명주기를 관리합니다.
type Server struct {
	HTTPServer *http.Server
	Logger     logging.Logger

	// 서버 종료 시 취소되는 base context. 하이재킹된 터널은 http.Server.Shutdown 이
	// 추적하지 않으므로 이 context 로 정리합니다.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewHTTPServer 는 H1/H2 를 지원하는 기본 HTTP 서버를 생성합니다.
// 스트리밍 응답과 터널을 끊지 않도록 Read/Write 타임아웃은 두지 않고, 헤더 읽기만 제한합니다.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	_ = http2.ConfigureServer(srv, &http2.Server{})
	return srv
}

// NewServer 는 handler 를 addr 에서 서비스하는 Server 를 만듭니다.
func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewStdJSONLogger("server")
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := NewHTTPServer(addr, handler)
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }

	return &Server{
		HTTPServer: srv,
		Logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

// Serve 는 ln 에서 요청을 받습니다. Shutdown 이후에는 nil 을 반환합니다.
func (s *Server) Serve(ln net.Listener) error {
	s.Logger.Info("listening", logging.Fields{"addr": ln.Addr().String()})
	if err := s.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe 는 설정된 주소에서 리슨을 시작합니다.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.HTTPServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown 은 진행 중인 일반 요청이 끝나기를 ctx 만큼 기다린 뒤,
// 남아 있는 스트림과 터널을 모두 닫습니다.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	s.cancelBase()
	if err != nil {
		s.Logger.Warn("graceful shutdown incomplete, closing remaining connections", logging.Fields{
			"error": err.Error(),
		})
		_ = s.HTTPServer.Close()
	}
	return err
}

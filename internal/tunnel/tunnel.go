// Package tunnel 은 이미 연결된 두 소켓 사이에서 바이트를 양방향으로 중계합니다.
// Package tunnel relays bytes between two already-connected sockets. (en)
//
// 터널은 프로토콜을 해석하지 않습니다. WebSocket 프레임도, HTTP 도 그대로 흘려보냅니다.
package tunnel

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/observability"
)

// Stats 는 종료된 세션의 결과입니다.
type Stats struct {
	Upstream   int64 // client -> backend
	Downstream int64 // backend -> client
	Duration   time.Duration
	// Err 는 세션을 끝낸 첫 번째 I/O 에러입니다. 정상 종료(EOF, 상대편 close)면 nil.
	Err error
}

// Session 은 클라이언트 소켓 하나와 백엔드 소켓 하나를 묶습니다.
// 어느 한쪽이 닫히면 다른 쪽도 닫힙니다.
type Session struct {
	ID      string
	client  net.Conn
	backend net.Conn
	logger  logging.Logger

	closeOnce sync.Once
}

// New 는 세션을 만들지만 중계를 시작하지는 않습니다. Run 을 호출해야 합니다.
func New(id string, client, backend net.Conn, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Session{
		ID:      id,
		client:  client,
		backend: backend,
		logger:  logger.With(logging.Fields{"session_id": id}),
	}
}

// Run 은 양방향 복사를 수행하고, 두 방향이 모두 끝날 때까지 블록합니다.
// 한 방향이 끝나는 즉시 두 소켓을 모두 닫으므로 반대 방향도 곧바로 끝납니다.
func (s *Session) Run() Stats {
	start := time.Now()
	observability.TunnelsActive.Inc()
	defer observability.TunnelsActive.Dec()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		stats    Stats
	)
	wg.Add(2)

	transfer := func(direction string, dst, src net.Conn, n *int64) {
		defer wg.Done()

		written, err := io.Copy(dst, src)
		*n = written
		observability.TunnelBytesTotal.WithLabelValues(direction).Add(float64(written))

		// 어느 쪽이든 언제든 연결을 끊을 수 있습니다. 그 경우 세션 전체를 정리합니다.
		if err != nil && !isClosed(err) {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			observability.ProxyErrorsTotal.WithLabelValues("tunnel_io").Inc()
			s.logger.Warn("tunnel copy failed", logging.Fields{
				"direction": direction,
				"error":     err.Error(),
			})
		}
		s.Close()
	}

	go transfer("upstream", s.backend, s.client, &stats.Upstream)
	go transfer("downstream", s.client, s.backend, &stats.Downstream)
	wg.Wait()

	stats.Duration = time.Since(start)
	stats.Err = firstErr

	s.logger.Debug("tunnel closed", logging.Fields{
		"upstream_bytes":   stats.Upstream,
		"downstream_bytes": stats.Downstream,
		"elapsed_ms":       stats.Duration.Milliseconds(),
	})
	return stats
}

// Close 는 두 소켓을 모두 닫습니다. 여러 번 호출해도 안전합니다.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.client.Close()
		_ = s.backend.Close()
	})
}

// isClosed 는 상대편 또는 우리 쪽 Close 로 인해 발생한, 정상 종료로 볼 수 있는 에러인지 판단합니다.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}

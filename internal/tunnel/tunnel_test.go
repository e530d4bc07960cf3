package tunnel

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

type pairs struct {
	clientPeer  net.Conn // test 가 클라이언트 역할로 사용
	backendPeer net.Conn // test 가 백엔드 역할로 사용
	session     *Session
	done        chan Stats
}

func startSession(t *testing.T) *pairs {
	t.Helper()
	clientSide, clientPeer := net.Pipe()
	backendSide, backendPeer := net.Pipe()

	p := &pairs{
		clientPeer:  clientPeer,
		backendPeer: backendPeer,
		session:     New("test-session", clientSide, backendSide, nil),
		done:        make(chan Stats, 1),
	}
	go func() { p.done <- p.session.Run() }()

	t.Cleanup(func() {
		clientPeer.Close()
		backendPeer.Close()
	})
	return p
}

func readFull(t *testing.T, c net.Conn, n int) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, n)
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf)
}

func waitClosed(t *testing.T, c net.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.Read(make([]byte, 1))
	if err == nil {
		t.Fatal("expected the peer to be closed")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("peer was not closed within the deadline")
	}
}

func TestSessionRelaysBothDirectionsInOrder(t *testing.T) {
	p := startSession(t)

	go func() { _, _ = p.clientPeer.Write([]byte("ping-1ping-2")) }()
	if got := readFull(t, p.backendPeer, 12); got != "ping-1ping-2" {
		t.Fatalf("backend got %q", got)
	}

	go func() { _, _ = p.backendPeer.Write([]byte("pong")) }()
	if got := readFull(t, p.clientPeer, 4); got != "pong" {
		t.Fatalf("client got %q", got)
	}
}

func TestClientCloseClosesBackend(t *testing.T) {
	p := startSession(t)

	p.clientPeer.Close()
	waitClosed(t, p.backendPeer)

	select {
	case st := <-p.done:
		if st.Err != nil {
			t.Fatalf("orderly close should not report an error, got %v", st.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestBackendCloseClosesClient(t *testing.T) {
	p := startSession(t)

	go func() { _, _ = p.backendPeer.Write([]byte("bye")) }()
	if got := readFull(t, p.clientPeer, 3); got != "bye" {
		t.Fatalf("client got %q", got)
	}
	p.backendPeer.Close()
	waitClosed(t, p.clientPeer)

	select {
	case st := <-p.done:
		if st.Downstream != 3 {
			t.Fatalf("downstream bytes = %d, want 3", st.Downstream)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := startSession(t)
	p.session.Close()
	p.session.Close()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after Close")
	}
}

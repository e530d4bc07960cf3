package proxy

import (
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dalbodeule/entrygate/internal/config"
	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/route"
)

const entryHTML = "<!doctype html><title>app</title><div id=app></div>"

// writeDist 는 프론트엔드 빌드 산출물을 흉내 낸 디렉터리를 만듭니다.
func writeDist(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":            entryHTML,
		"assets/app.js":         "console.log('app')",
		"api/service1/file.txt": "static shadow",
	}
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

type gatewaySetup struct {
	services      map[string]string
	routes        string
	upgradeRoutes string
}

func newTestGateway(t *testing.T, s gatewaySetup) *Gateway {
	t.Helper()
	routes, err := route.ParseSpecs(s.routes)
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	upgradeRoutes, err := route.ParseSpecs(s.upgradeRoutes)
	if err != nil {
		t.Fatalf("upgrade routes: %v", err)
	}
	cfg := &config.GatewayConfig{
		Listen:        ":0",
		StaticDir:     writeDist(t),
		EntryFile:     "index.html",
		APIPrefix:     "/api/",
		Services:      s.services,
		Routes:        routes,
		UpgradeRoutes: upgradeRoutes,
		DialTimeout:   2 * time.Second,
	}
	gw, err := FromConfig(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return gw
}

// serveGateway 는 gw 를 실제 TCP 리스너에서 서비스합니다.
func serveGateway(t *testing.T, gw *Gateway) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(ln.Addr().String(), gw, logging.Nop())
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.HTTPServer.Close()
		srv.cancelBase()
	})
	return ln.Addr().String()
}

// hostOf returns host:port of an httptest server.
func hostOf(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u.Host
}

// closedAddr 는 아무도 리슨하지 않는 로컬 주소를 반환합니다.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

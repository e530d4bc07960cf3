package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dalbodeule/entrygate/internal/admin"
	"github.com/dalbodeule/entrygate/internal/config"
	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/observability"
	"github.com/dalbodeule/entrygate/internal/proxy"
)

func main() {
	bootLogger := logging.NewStdJSONLogger("server")

	// 1. 설정 로드 (.env + 환경변수)
	cfg, err := config.LoadGatewayConfigFromEnv()
	if err != nil {
		bootLogger.Error("failed to load gateway config from env", logging.Fields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, "server", cfg.Logging.Level)

	logger.Info("entrygate starting", logging.Fields{
		"listen":       cfg.Listen,
		"admin_listen": cfg.AdminListen,
		"static_dir":   cfg.StaticDir,
		"entry_file":   cfg.EntryFile,
		"api_prefix":   cfg.APIPrefix,
	})

	// 2. 레지스트리/규칙/정적 디렉터리 해석. 알 수 없는 서비스를 참조하면 여기서 시작을 중단합니다.
	gw, err := proxy.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("invalid gateway configuration", logging.Fields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	for _, r := range gw.Routes() {
		logger.Info("http route", logging.Fields{
			"prefix":  r.Prefix,
			"mode":    r.Mode.String(),
			"service": r.Target.Name,
			"target":  r.Target.Addr(),
			"timeout": r.Timeout.String(),
		})
	}
	for _, r := range gw.UpgradeRoutes() {
		logger.Info("upgrade route", logging.Fields{
			"prefix":      r.Prefix,
			"replacement": r.Replacement,
			"service":     r.Target.Name,
			"target":      r.Target.Addr(),
		})
	}

	observability.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 관리/메트릭 리스너 (선택)
	var adminSrv *http.Server
	if cfg.AdminListen != "" {
		mux := http.NewServeMux()
		admin.NewHandler(logger, gw).RegisterRoutes(mux)
		adminSrv = &http.Server{
			Addr:              cfg.AdminListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin listening", logging.Fields{"addr": cfg.AdminListen})
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", logging.Fields{"error": err.Error()})
			}
		}()
	}

	// 4. 트래픽 리스너
	srv := proxy.NewServer(cfg.Listen, gw, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("traffic listener failed", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down", logging.Fields{"timeout": cfg.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if adminSrv != nil {
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("entrygate stopped", nil)
}

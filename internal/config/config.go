package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dalbodeule/entrygate/internal/logging"
	"github.com/dalbodeule/entrygate/internal/route"
)

// ErrInvalidConfig 는 설정 값이 잘못되어 프로세스를 시작할 수 없을 때 반환됩니다.
var ErrInvalidConfig = errors.New("invalid config")

// LoggingConfig 는 공통 로그 설정을 담습니다.
type LoggingConfig struct {
	Level logging.Level // 예: "debug", "info", "warn", "error"
}

// GatewayConfig 는 단일 진입점 게이트웨이 프로세스 설정을 담습니다.
type GatewayConfig struct {
	Listen      string // 트래픽 리스너, 예: ":8000"
	AdminListen string // 관리/메트릭 리스너, 빈 값이면 비활성화

	StaticDir string // 프론트엔드 빌드 산출물 디렉터리
	EntryFile string // SPA fallback 엔트리 파일 (StaticDir 기준 상대 경로)
	APIPrefix string // 예약된 API prefix, SPA fallback 대상에서 제외됨

	Services      map[string]string // 서비스 이름 -> "scheme://host:port"
	Routes        []route.Spec      // 일반 HTTP 규칙 (선언 순서 유지)
	UpgradeRoutes []route.Spec      // 업그레이드(WebSocket) 규칙 (선언 순서 유지)

	DialTimeout     time.Duration // 백엔드 TCP 연결 타임아웃
	ShutdownTimeout time.Duration // graceful shutdown 대기 시간

	Logging LoggingConfig
}

// EntryPath 는 SPA fallback 엔트리 파일의 전체 경로를 반환합니다.
func (c *GatewayConfig) EntryPath() string {
	return filepath.Join(c.StaticDir, filepath.FromSlash(c.EntryFile))
}

const (
	defaultServices      = "service1=http://localhost:5000,ws=ws://localhost:5000"
	defaultRoutes        = "/api/service1=service1"
	defaultUpgradeRoutes = "/api/ws=ws:/ws"
)

var (
	dotenvOnce sync.Once
	dotenvErr  error
)

// loadDotEnvOnce 는 현재 작업 디렉터리의 .env 파일을 한 번만 읽어서 os.Environ 에 주입합니다.
// - KEY=VALUE, export KEY=VALUE 형식을 지원
// - # 으로 시작하는 줄은 주석으로 간주합니다.
func loadDotEnvOnce() {
	dotenvOnce.Do(func() {
		dotenvErr = loadDotEnv(".env")
	})
}

func loadDotEnv(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// .env 가 없으면 조용히 무시
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		// 양 끝의 작은/큰따옴표 제거
		val = strings.Trim(strings.TrimSpace(val), `"'`)

		// 이미 OS 환경변수에 설정된 값이 있으면 그 값을 우선합니다.
		if key != "" {
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
	return scanner.Err()
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, key, v)
	}
	return d, nil
}

// parseKeyValueCSV 는 "k1=v1,k2=v2" 형태의 문자열을 map 으로 변환합니다.
func parseKeyValueCSV(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	m := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k != "" {
			m[k] = strings.TrimSpace(v)
		}
	}
	return m
}

// normalizeListen 은 숫자 포트만 지정된 경우 ":" prefix 를 붙입니다. (예: "8000" -> ":8000")
func normalizeListen(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, ":") {
		return p
	}
	if _, err := strconv.Atoi(p); err == nil {
		return ":" + p
	}
	return p
}

// LoadGatewayConfigFromEnv 는 .env 를 한 번 읽어 현재 환경변수를 보완한 뒤
// "환경변수 > .env" 우선순위로 게이트웨이 설정을 구성합니다.
func LoadGatewayConfigFromEnv() (*GatewayConfig, error) {
	loadDotEnvOnce()
	if dotenvErr != nil {
		return nil, dotenvErr
	}
	return FromEnv()
}

// FromEnv 는 .env 를 건드리지 않고 현재 환경변수만으로 설정을 구성합니다.
func FromEnv() (*GatewayConfig, error) {
	routes, err := route.ParseSpecs(getEnvOrDefault("GATE_ROUTES", defaultRoutes))
	if err != nil {
		return nil, fmt.Errorf("GATE_ROUTES: %w", err)
	}
	upgradeRoutes, err := route.ParseSpecs(getEnvOrDefault("GATE_UPGRADE_ROUTES", defaultUpgradeRoutes))
	if err != nil {
		return nil, fmt.Errorf("GATE_UPGRADE_ROUTES: %w", err)
	}
	dialTimeout, err := getEnvDuration("GATE_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("GATE_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &GatewayConfig{
		Listen:          normalizeListen(getEnvOrDefault("GATE_LISTEN", ":8000")),
		AdminListen:     normalizeListen(os.Getenv("GATE_ADMIN_LISTEN")),
		StaticDir:       getEnvOrDefault("GATE_STATIC_DIR", "./dist"),
		EntryFile:       getEnvOrDefault("GATE_ENTRY_FILE", "index.html"),
		APIPrefix:       getEnvOrDefault("GATE_API_PREFIX", "/api/"),
		Services:        parseKeyValueCSV(getEnvOrDefault("GATE_SERVICES", defaultServices)),
		Routes:          routes,
		UpgradeRoutes:   upgradeRoutes,
		DialTimeout:     dialTimeout,
		ShutdownTimeout: shutdownTimeout,
		Logging: LoggingConfig{
			Level: logging.ParseLevel(getEnvOrDefault("GATE_LOG_LEVEL", "info")),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 서비스 해석 이전에 확인할 수 있는 값들을 검사합니다.
// 서비스 이름 해석(UnknownService)은 registry/route 단계에서 수행됩니다.
func (c *GatewayConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	}
	if c.AdminListen != "" && c.AdminListen == c.Listen {
		return fmt.Errorf("%w: admin listener must not share the traffic port", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("%w: api prefix %q must start with /", ErrInvalidConfig, c.APIPrefix)
	}
	if c.EntryFile == "" || strings.HasPrefix(c.EntryFile, "..") || filepath.IsAbs(c.EntryFile) {
		return fmt.Errorf("%w: entry file %q must be relative to the static dir", ErrInvalidConfig, c.EntryFile)
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("%w: no services configured", ErrInvalidConfig)
	}
	return nil
}

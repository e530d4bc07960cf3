package registry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownService 는 등록되지 않은 서비스 이름을 조회했을 때 반환됩니다.
// 설정 단계에서 발생하며 프로세스 시작을 중단시킵니다.
var ErrUnknownService = errors.New("unknown service")

// ErrInvalidService 는 서비스 주소 형식이 잘못되었을 때 반환됩니다.
var ErrInvalidService = errors.New("invalid service address")

// Scheme 은 백엔드가 받는 프로토콜입니다.
type Scheme string

const (
	SchemeHTTP Scheme = "http"
	SchemeWS   Scheme = "ws"
)

// ServiceRef 는 하나의 논리 서비스가 가리키는 네트워크 주소입니다.
// ServiceRef is the network address a logical service resolves to. (en)
type ServiceRef struct {
	Name   string
	Host   string
	Port   int
	Scheme Scheme
}

// Addr returns host:port, suitable for net.Dial.
func (s ServiceRef) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the base URL of the service. ws services are reached over plain
// HTTP for the handshake, so the URL scheme is always http.
func (s ServiceRef) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: s.Addr()}
}

// Registry 는 시작 시점에 한 번 채워지고 이후 변경되지 않는 서비스 테이블입니다.
// 잠금 없이 여러 goroutine 에서 동시에 읽어도 안전합니다.
type Registry struct {
	services map[string]ServiceRef
}

// New 는 name -> "scheme://host:port" 맵으로 Registry 를 구성합니다.
func New(addrs map[string]string) (*Registry, error) {
	services := make(map[string]ServiceRef, len(addrs))
	for name, raw := range addrs {
		ref, err := ParseServiceRef(name, raw)
		if err != nil {
			return nil, err
		}
		services[name] = ref
	}
	return &Registry{services: services}, nil
}

// ParseServiceRef 는 "http://127.0.0.1:5000" 형식의 주소를 파싱합니다.
func ParseServiceRef(name, raw string) (ServiceRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ServiceRef{}, fmt.Errorf("%w: empty service name", ErrInvalidService)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ServiceRef{}, fmt.Errorf("%w: %s: %v", ErrInvalidService, name, err)
	}

	scheme := Scheme(strings.ToLower(u.Scheme))
	if scheme != SchemeHTTP && scheme != SchemeWS {
		return ServiceRef{}, fmt.Errorf("%w: %s: scheme must be http or ws, got %q", ErrInvalidService, name, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return ServiceRef{}, fmt.Errorf("%w: %s: missing host", ErrInvalidService, name)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return ServiceRef{}, fmt.Errorf("%w: %s: invalid port %q", ErrInvalidService, name, u.Port())
	}
	if u.Path != "" && u.Path != "/" {
		return ServiceRef{}, fmt.Errorf("%w: %s: path is not allowed in a service address", ErrInvalidService, name)
	}

	return ServiceRef{Name: name, Host: host, Port: port, Scheme: scheme}, nil
}

// Lookup 은 서비스 이름에 해당하는 ServiceRef 를 반환합니다.
func (r *Registry) Lookup(name string) (ServiceRef, error) {
	ref, ok := r.services[name]
	if !ok {
		return ServiceRef{}, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return ref, nil
}

// Services returns every registered service ordered by name.
func (r *Registry) Services() []ServiceRef {
	out := make([]ServiceRef, 0, len(r.services))
	for _, ref := range r.services {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package route

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalbodeule/entrygate/internal/registry"
)

// ErrInvalidRule 는 규칙 문자열 형식이 잘못되었을 때 반환됩니다.
var ErrInvalidRule = errors.New("invalid route rule")

// Spec 은 설정 문자열에서 파싱된, 아직 서비스가 해석되지 않은 규칙입니다.
//
// 문법: prefix=service[:replacement][@timeout]
//   - /api/service1=service1          -> prefix strip
//   - /api/ws=ws:/ws                  -> prefix substitute
//   - /api/service2=service2@30s      -> strip, 30초 타임아웃
type Spec struct {
	Prefix      string
	Service     string
	Replacement string
	Substitute  bool
	Timeout     time.Duration
}

func (s Spec) String() string {
	out := s.Prefix + "=" + s.Service
	if s.Substitute {
		out += ":" + s.Replacement
	}
	if s.Timeout > 0 {
		out += "@" + s.Timeout.String()
	}
	return out
}

// ParseSpecs 는 콤마로 구분된 규칙 목록을 선언 순서대로 파싱합니다.
func ParseSpecs(raw string) ([]Spec, error) {
	var out []Spec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := parseSpec(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func parseSpec(entry string) (Spec, error) {
	prefix, rest, ok := strings.Cut(entry, "=")
	prefix = strings.TrimSpace(prefix)
	if !ok || !strings.HasPrefix(prefix, "/") {
		return Spec{}, fmt.Errorf("%w: %q: expected /prefix=service", ErrInvalidRule, entry)
	}

	s := Spec{Prefix: prefix}

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		d, err := time.ParseDuration(strings.TrimSpace(rest[i+1:]))
		if err != nil || d <= 0 {
			return Spec{}, fmt.Errorf("%w: %q: bad timeout", ErrInvalidRule, entry)
		}
		s.Timeout = d
		rest = rest[:i]
	}

	service, replacement, substitute := strings.Cut(rest, ":")
	s.Service = strings.TrimSpace(service)
	if s.Service == "" {
		return Spec{}, fmt.Errorf("%w: %q: missing service", ErrInvalidRule, entry)
	}
	if substitute {
		replacement = strings.TrimSpace(replacement)
		if !strings.HasPrefix(replacement, "/") {
			return Spec{}, fmt.Errorf("%w: %q: replacement must start with /", ErrInvalidRule, entry)
		}
		s.Replacement = replacement
		s.Substitute = true
	}
	return s, nil
}

// Options 는 Resolve 가 만드는 규칙들에 공통으로 적용됩니다.
type Options struct {
	Scheme    registry.Scheme // 대상 서비스가 가져야 하는 scheme
	Bounded   bool
	Streaming bool
}

// Resolve 는 Spec 목록을 Registry 로 해석해 Rule 목록으로 만듭니다.
// 등록되지 않은 서비스는 registry.ErrUnknownService 로 실패합니다.
func Resolve(specs []Spec, reg *registry.Registry, opts Options) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		ref, err := reg.Lookup(s.Service)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", s.Prefix, err)
		}
		if opts.Scheme != "" && ref.Scheme != opts.Scheme {
			return nil, fmt.Errorf("%w: route %s: service %q is %s, want %s",
				ErrInvalidRule, s.Prefix, s.Service, ref.Scheme, opts.Scheme)
		}

		r := Rule{
			Prefix:    s.Prefix,
			Mode:      ModeStrip,
			Target:    ref,
			Streaming: opts.Streaming,
			Timeout:   s.Timeout,
			Bounded:   opts.Bounded,
		}
		if s.Substitute {
			r.Mode = ModeSubstitute
			r.Replacement = s.Replacement
		}
		rules = append(rules, r)
	}
	return rules, nil
}

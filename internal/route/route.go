// Package route 는 경로 prefix 기반 라우팅 규칙과 경로 재작성(rewrite)을 담당합니다.
//
// 규칙 테이블은 선언 순서대로 평가되며 첫 번째 매치가 이깁니다.
// 테이블은 시작 시점에 만들어진 뒤 변경되지 않습니다.
package route

import (
	"net/url"
	"strings"
	"time"

	"github.com/dalbodeule/entrygate/internal/registry"
)

// Mode 는 경로 재작성 방식입니다.
type Mode int

const (
	// ModeStrip 은 매치된 prefix 를 제거합니다. (/api/service1/jobs -> /jobs)
	ModeStrip Mode = iota
	// ModeSubstitute 는 매치된 prefix 를 Replacement 로 치환합니다. (/api/ws/x -> /ws/x)
	ModeSubstitute
)

func (m Mode) String() string {
	if m == ModeSubstitute {
		return "substitute"
	}
	return "strip"
}

// Rule 은 하나의 라우팅 규칙입니다.
type Rule struct {
	Prefix      string
	Mode        Mode
	Replacement string // ModeSubstitute 일 때만 사용
	Target      registry.ServiceRef

	// Streaming 이면 응답을 버퍼링 없이 즉시 flush 합니다.
	Streaming bool
	// Timeout 이 0 이면 end-to-end 타임아웃을 걸지 않습니다.
	Timeout time.Duration
	// Bounded 이면 prefix 뒤가 경로 세그먼트 경계("/" 또는 끝)여야 매치됩니다.
	Bounded bool
}

// Matches reports whether path falls under the rule's prefix.
func (r Rule) Matches(path string) bool {
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	if !r.Bounded || len(path) == len(r.Prefix) || strings.HasSuffix(r.Prefix, "/") {
		return true
	}
	return path[len(r.Prefix)] == '/'
}

// Rewrite 는 매치된 경로를 백엔드로 보낼 경로로 변환합니다.
// 호출자는 rule.Matches(path) 가 참인 경우에만 호출해야 합니다.
func Rewrite(rule Rule, path string) string {
	rest := strings.TrimPrefix(path, rule.Prefix)

	var out string
	switch rule.Mode {
	case ModeSubstitute:
		out = rule.Replacement + rest
	default:
		out = rest
	}

	if out == "" {
		return "/"
	}
	if out[0] != '/' {
		return "/" + out
	}
	return out
}

// RewriteURL 은 Rewrite 를 퍼센트 인코딩된 경로(EscapedPath)에 적용합니다.
// %2F 같은 인코딩된 구분자를 디코딩하지 않고 그대로 백엔드로 보내기 위해
// 디코딩된 path 와 원본 인코딩의 rawPath 를 함께 반환합니다.
// 인코딩된 경로가 prefix 로 시작하지 않으면(prefix 자체가 인코딩되어 들어온 경우)
// 디코딩된 경로로 재작성하고 rawPath 는 비워 둡니다.
func RewriteURL(rule Rule, u *url.URL) (p, rawPath string) {
	escaped := u.EscapedPath()
	if !strings.HasPrefix(escaped, rule.Prefix) {
		return Rewrite(rule, u.Path), ""
	}
	rawPath = Rewrite(rule, escaped)
	p, err := url.PathUnescape(rawPath)
	if err != nil {
		return Rewrite(rule, u.Path), ""
	}
	// 기본 인코딩과 같으면 RawPath 는 필요 없습니다.
	if (&url.URL{Path: p}).EscapedPath() == rawPath {
		rawPath = ""
	}
	return p, rawPath
}

// Table 은 선언 순서가 고정된 규칙 목록입니다.
type Table struct {
	rules []Rule
}

// NewTable copies rules so later changes to the caller's slice cannot reorder the table.
func NewTable(rules []Rule) *Table {
	return &Table{rules: append([]Rule(nil), rules...)}
}

// Match 는 path 에 매치되는 첫 번째 규칙과 그 인덱스를 반환합니다.
// 매치된 규칙 이후의 규칙은 평가하지 않습니다.
func (t *Table) Match(path string) (Rule, int, bool) {
	for i, r := range t.rules {
		if r.Matches(path) {
			return r, i, true
		}
	}
	return Rule{}, -1, false
}

// Rules returns a copy of the table in declaration order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Len returns the number of rules.
func (t *Table) Len() int { return len(t.rules) }

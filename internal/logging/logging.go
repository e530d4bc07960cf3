package logging

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level 은 로그의 심각도 레벨을 나타냅니다.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) rank() int {
	switch l {
	case DebugLevel:
		return 0
	case WarnLevel:
		return 2
	case ErrorLevel:
		return 3
	default:
		return 1
	}
}

// ParseLevel 은 "debug", "INFO" 같은 문자열을 Level 로 변환합니다.
// 알 수 없는 값은 InfoLevel 로 취급합니다.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case DebugLevel:
		return DebugLevel
	case WarnLevel, "warning":
		return WarnLevel
	case ErrorLevel:
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Fields 는 구조적 로그의 key/value 필드를 표현합니다.
type Fields map[string]any

// Logger 는 게이트웨이 전역에서 사용하는 구조적 로그 인터페이스입니다.
//
// - 모든 구현체는 단일 라인 JSON 을 출력합니다.
// - request_id, session_id 같은 필드는 With 로 child logger 에 고정해 둡니다.
type Logger interface {
	// Debug 는 디버그 레벨 로그를 기록합니다.
	Debug(msg string, fields Fields)

	// Info 는 정보 레벨 로그를 기록합니다.
	Info(msg string, fields Fields)

	// Warn 는 경고 레벨 로그를 기록합니다.
	Warn(msg string, fields Fields)

	// Error 는 에러 레벨 로그를 기록합니다.
	Error(msg string, fields Fields)

	// With 는 추가 필드를 항상 포함하는 child logger 를 생성합니다.
	With(fields Fields) Logger
}

// jsonLogger 는 표준 log.Logger 위에 JSON 인코딩과 레벨 필터를 얹은 구현체입니다.
type jsonLogger struct {
	l      *log.Logger
	min    Level
	fields Fields
}

func (s *jsonLogger) log(level Level, msg string, fields Fields) {
	if level.rank() < s.min.rank() {
		return
	}

	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}

	// 공통 필드 병합
	for k, v := range s.fields {
		entry[k] = v
	}
	// 호출 시 전달된 필드 병합(우선순위 높음)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}

	b, err := json.Marshal(entry)
	if err != nil {
		// JSON 마샬 실패 시 fallback 으로 기본 포맷 사용
		s.l.Printf("level=%s msg=%s marshal_error=%v", level, msg, err)
		return
	}
	s.l.Println(string(b))
}

func (s *jsonLogger) Debug(msg string, fields Fields) { s.log(DebugLevel, msg, fields) }
func (s *jsonLogger) Info(msg string, fields Fields)  { s.log(InfoLevel, msg, fields) }
func (s *jsonLogger) Warn(msg string, fields Fields)  { s.log(WarnLevel, msg, fields) }
func (s *jsonLogger) Error(msg string, fields Fields) { s.log(ErrorLevel, msg, fields) }

func (s *jsonLogger) With(fields Fields) Logger {
	merged := Fields{}
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &jsonLogger{
		l:      s.l,
		min:    s.min,
		fields: merged,
	}
}

// New 는 w 로 단일 라인 JSON 로그를 쓰는 Logger 를 생성합니다.
// min 보다 낮은 레벨의 로그는 버려집니다.
func New(w io.Writer, component string, min Level) Logger {
	return &jsonLogger{
		l:      log.New(w, "", 0), // 프리픽스/타임스탬프는 JSON 필드로만 사용
		min:    min,
		fields: Fields{"component": component},
	}
}

// NewStdJSONLogger 는 stdout 으로 info 이상 로그를 출력하는 기본 Logger 를 생성합니다.
func NewStdJSONLogger(component string) Logger {
	return New(os.Stdout, component, InfoLevel)
}

// Nop 은 아무것도 출력하지 않는 Logger 를 반환합니다. 테스트에서 주로 사용합니다.
func Nop() Logger {
	return New(io.Discard, "nop", ErrorLevel)
}

// Package errorpages 는 게이트웨이가 직접 만들어 내는 에러 응답을 담당합니다.
//
// 백엔드 응답 본문은 절대 수정하지 않습니다. 이 패키지는 백엔드에 닿지 못했거나
// 매치되는 대상이 없을 때만 사용됩니다.
package errorpages

import (
	"encoding/json"
	"net/http"
)

// StatusBadGateway 는 백엔드 연결 실패를 나타냅니다.
const StatusBadGateway = http.StatusBadGateway

// StatusGatewayTimeout 는 라우트 타임아웃을 초과한 경우입니다.
const StatusGatewayTimeout = http.StatusGatewayTimeout

// Payload 는 API 호출자에게 돌려주는 구조화된 에러 본문입니다.
type Payload struct {
	Success   bool   `json:"success"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Render writes a JSON error payload for status. An empty message falls back
// to the lower-cased standard status text.
//
// 주어진 상태 코드로 JSON 에러 본문을 씁니다.
func Render(w http.ResponseWriter, status int, message, requestID string) {
	if message == "" {
		message = defaultMessage(status)
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(Payload{
		Success:   false,
		Status:    status,
		Error:     message,
		RequestID: requestID,
	})
}

func defaultMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "api not found"
	case http.StatusBadGateway:
		return "bad gateway"
	case http.StatusGatewayTimeout:
		return "gateway timeout"
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return "error"
}

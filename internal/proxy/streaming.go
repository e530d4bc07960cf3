package proxy

import (
	"net/http"
	"strings"
)

// normalizeStreamingHeaders 는 event-stream 응답에 no-cache / keep-alive 를 강제합니다.
// 백엔드가 보낸 값과 관계없이 덮어써서 중간 프록시가 스트림을 버퍼링하지 않도록 합니다.
// 본문은 건드리지 않습니다.
func normalizeStreamingHeaders(res *http.Response) error {
	if !isEventStream(res.Header.Get("Content-Type")) {
		return nil
	}
	res.Header.Set("Cache-Control", "no-cache")
	res.Header.Set("Connection", "keep-alive")
	// nginx 등 앞단 프록시의 응답 버퍼링도 끕니다.
	res.Header.Set("X-Accel-Buffering", "no")
	return nil
}

func isEventStream(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/event-stream")
}

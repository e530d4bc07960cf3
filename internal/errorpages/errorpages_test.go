package errorpages

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRenderDefaultMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, http.StatusNotFound, "", "req-1")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}

	var p Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if p.Success || p.Status != 404 || p.Error != "api not found" || p.RequestID != "req-1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestRenderCustomMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Render(rec, StatusBadGateway, "backend unreachable", "")

	var p Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if p.Status != 502 || p.Error != "backend unreachable" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

package registry

import (
	"errors"
	"testing"
)

func TestLookupKnownService(t *testing.T) {
	reg, err := New(map[string]string{
		"service1": "http://localhost:5000",
		"ws":       "ws://127.0.0.1:5001",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ref, err := reg.Lookup("ws")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ref.Scheme != SchemeWS || ref.Addr() != "127.0.0.1:5001" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if got := ref.URL().String(); got != "http://127.0.0.1:5001" {
		t.Fatalf("URL() = %q", got)
	}
}

func TestLookupUnknownService(t *testing.T) {
	reg, err := New(map[string]string{"service1": "http://localhost:5000"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := reg.Lookup("service2"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestNewRejectsInvalidAddresses(t *testing.T) {
	bad := []string{
		"localhost:5000",
		"https://localhost:5000",
		"http://localhost",
		"http://:5000",
		"http://localhost:70000",
		"http://localhost:5000/api",
	}
	for _, raw := range bad {
		if _, err := New(map[string]string{"svc": raw}); !errors.Is(err, ErrInvalidService) {
			t.Errorf("New(%q) error = %v, want ErrInvalidService", raw, err)
		}
	}
}

func TestServicesSortedByName(t *testing.T) {
	reg, err := New(map[string]string{
		"b": "http://h:1",
		"a": "ws://h:2",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := reg.Services()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

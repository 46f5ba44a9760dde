package netprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckConnected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := New(server.URL)
	status, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusConnected {
		t.Errorf("expected StatusConnected, got %v", status)
	}
	if !p.IsOnline(context.Background()) {
		t.Error("expected IsOnline to be true")
	}
}

func TestCheckDisconnected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.Listener.Addr().String()
	server.Close()

	p := New("http://" + addr)
	status, _ := p.Check(context.Background())
	if status != StatusDisconnected {
		t.Errorf("expected StatusDisconnected, got %v", status)
	}
	if p.IsOnline(context.Background()) {
		t.Error("expected IsOnline to be false")
	}
}

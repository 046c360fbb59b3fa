package utils

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEndpointPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("a ping must not send an HTTP request")
	}))
	defer srv.Close()

	if err := (Endpoint{URL: srv.URL, Timeout: time.Second}).Ping(context.Background()); err != nil {
		t.Errorf("Expected the test server to be reachable, got %v", err)
	}
}

func TestPingServiceUnreachable(t *testing.T) {
	// Reserve a port and release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if err := PingService(context.Background(), "http://"+addr, time.Second); err == nil {
		t.Error("Expected a closed port to fail")
	}
}

func TestPingServiceRejectsBadURLs(t *testing.T) {
	for _, u := range []string{"", "://nohost", "http://"} {
		if err := PingService(context.Background(), u, time.Second); err == nil {
			t.Errorf("Expected %q to be rejected", u)
		}
	}
}

func TestPingServiceHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := PingService(ctx, "http://127.0.0.1:1", time.Second); err == nil {
		t.Error("Expected a cancelled context to fail the ping")
	}
}

package services

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/localnerve/meddb/internal/config"
	"github.com/localnerve/meddb/internal/testutil"
	"go.uber.org/zap"
)

func TestDirectoryEndpoints(t *testing.T) {
	cfg := &config.Config{DeltaURL: "https://delta.example.dk", GraphURL: "https://graph.example.com", DirectoryTimeout: time.Second}

	endpoints := DirectoryEndpoints(cfg)
	if len(endpoints) != 1 || endpoints["delta"] == nil {
		t.Fatalf("Expected only delta without Graph credentials, got %v", endpoints)
	}

	cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret = "tenant", "client", "secret"
	endpoints = DirectoryEndpoints(cfg)
	if endpoints["graph"] == nil {
		t.Fatal("Expected graph once credentials are configured")
	}
}

func TestHealthCheckDirectoryReachability(t *testing.T) {
	db := testutil.OpenDB(t)

	up := httptest.NewServer(http.NotFoundHandler())
	defer up.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	down := "http://" + ln.Addr().String()
	ln.Close()

	cfg := &config.Config{
		AuthzURL:          up.URL,
		DeltaURL:          up.URL,
		GraphURL:          down,
		GraphTenantID:     "tenant",
		GraphClientID:     "client",
		GraphClientSecret: "secret",
		DirectoryTimeout:  time.Second,
	}
	result := HealthCheck(context.Background(), cfg, db, DirectoryEndpoints(cfg), zap.NewNop())

	if result.Directories["delta"] != "ok" {
		t.Errorf("Expected delta ok, got %q", result.Directories["delta"])
	}
	if result.Directories["graph"] != "unreachable" {
		t.Errorf("Expected graph unreachable, got %q", result.Directories["graph"])
	}
	if result.Status != "degraded" {
		t.Errorf("Expected degraded status, got %q (%s)", result.Status, result.ErrorMessage)
	}
}

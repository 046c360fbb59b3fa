package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

const authorizerPingTimeout = 1500 * time.Millisecond

// Endpoint is a remote HTTP service checked by TCP reachability only, so a health
// check never spends a directory query or an OAuth token.
type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// Ping dials the endpoint's host and port.
func (e Endpoint) Ping(ctx context.Context) error {
	return PingService(ctx, e.URL, e.Timeout)
}

// PingService opens and closes a TCP connection to the host of serviceURL. The port
// defaults from the scheme. A zero timeout leaves the bound to ctx.
func PingService(ctx context.Context, serviceURL string, timeout time.Duration) error {
	if serviceURL == "" {
		return errors.New("no URL configured")
	}
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		return fmt.Errorf("invalid URL %q: missing host", serviceURL)
	}

	port := parsedURL.Port()
	if port == "" {
		port = "80"
		if parsedURL.Scheme == "https" {
			port = "443"
		}
	}
	address := net.JoinHostPort(host, port)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn.Close()
}

// PingAuthorizer checks that the Authorizer service accepts connections.
func PingAuthorizer(ctx context.Context, authzURL string) error {
	return PingService(ctx, authzURL, authorizerPingTimeout)
}

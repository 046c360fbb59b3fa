package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/localnerve/meddb/internal/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Auth selects how an APIClient authenticates. The first applicable mode wins:
// API key, OAuth2 (client credentials, or password grant when Username is set), basic auth.
type Auth struct {
	APIKey    string
	UseBearer bool

	// OAuth2. The token URL is derived from AuthURL (or the base URL) and Realm or TenantID.
	AuthURL       string
	Realm         string
	TenantID      string
	AddAuthToPath bool
	ClientID      string
	ClientSecret  string
	Scopes        []string

	Username string
	Password string
}

func (a Auth) oauth() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

// TokenURL returns the Keycloak realm or Azure tenant token endpoint.
func TokenURL(authURL, realm, tenantID string, addAuthToPath bool) (string, error) {
	authURL = strings.TrimRight(authURL, "/")
	switch {
	case realm != "" && addAuthToPath:
		return fmt.Sprintf("%s/auth/realms/%s/protocol/openid-connect/token", authURL, realm), nil
	case realm != "":
		return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", authURL, realm), nil
	case tenantID != "":
		return fmt.Sprintf("%s/%s/oauth2/v2.0/token", authURL, tenantID), nil
	}
	return "", fmt.Errorf("realm or tenant id is required for client credential authentication")
}

// APIClient is a small JSON-over-HTTP client shared by the directory integrations.
// Tokens are cached and refreshed on expiry by the oauth2 token source.
type APIClient struct {
	service string
	baseURL string
	auth    Auth
	timeout time.Duration

	plain *http.Client

	mu      sync.Mutex
	tokens  oauth2.TokenSource
	oauthFn func(ctx context.Context) (oauth2.TokenSource, error)
}

// NewAPIClient builds a client for baseURL. service names the system in errors.
func NewAPIClient(service, baseURL string, auth Auth, timeout time.Duration) (*APIClient, error) {
	c := &APIClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		timeout: timeout,
		plain:   &http.Client{Timeout: timeout},
	}

	if auth.APIKey == "" && auth.oauth() {
		base := auth.AuthURL
		if base == "" {
			base = c.baseURL
		}
		tokenURL, err := TokenURL(base, auth.Realm, auth.TenantID, auth.AddAuthToPath)
		if err != nil {
			return nil, err
		}
		var scopes []string
		if auth.TenantID != "" {
			scopes = auth.Scopes
		}
		c.oauthFn = c.tokenSourceFunc(tokenURL, scopes)
	}

	return c, nil
}

func (c *APIClient) tokenSourceFunc(tokenURL string, scopes []string) func(ctx context.Context) (oauth2.TokenSource, error) {
	if c.auth.Username != "" && c.auth.Password != "" {
		cfg := &oauth2.Config{
			ClientID:     c.auth.ClientID,
			ClientSecret: c.auth.ClientSecret,
			Scopes:       scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}
		return func(ctx context.Context) (oauth2.TokenSource, error) {
			token, err := cfg.PasswordCredentialsToken(ctx, c.auth.Username, c.auth.Password)
			if err != nil {
				return nil, err
			}
			return cfg.TokenSource(ctx, token), nil
		}
	}

	cfg := &clientcredentials.Config{
		ClientID:     c.auth.ClientID,
		ClientSecret: c.auth.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return func(ctx context.Context) (oauth2.TokenSource, error) {
		return cfg.TokenSource(ctx), nil
	}
}

// tokenSource lazily creates the cached token source. Token requests use their own
// context so a cancelled request does not poison the cache.
func (c *APIClient) tokenSource() (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens != nil {
		return c.tokens, nil
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.plain)
	ts, err := c.oauthFn(ctx)
	if err != nil {
		return nil, err
	}
	c.tokens = oauth2.ReuseTokenSource(nil, ts)
	return c.tokens, nil
}

func (c *APIClient) authorize(req *http.Request) error {
	switch {
	case c.auth.APIKey != "" && c.auth.UseBearer:
		req.Header.Set("Authorization", "Bearer "+c.auth.APIKey)
	case c.auth.APIKey != "":
		req.Header.Set("Authorization", c.auth.APIKey)
	case c.oauthFn != nil:
		ts, err := c.tokenSource()
		if err != nil {
			return err
		}
		token, err := ts.Token()
		if err != nil {
			return err
		}
		token.SetAuthHeader(req)
	case c.auth.Username != "" && c.auth.Password != "":
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}
	return nil
}

// Request describes one call relative to the base URL.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
}

// Do performs the request and decodes a JSON response into out when out is not nil.
// Every failure is returned as *types.ExternalServiceError.
func (c *APIClient) Do(ctx context.Context, r Request, out any) error {
	method := r.Method
	if method == "" {
		method = http.MethodGet
		if r.Body != nil {
			method = http.MethodPost
		}
	}

	target := c.baseURL
	if r.Path != "" {
		target += "/" + strings.TrimLeft(r.Path, "/")
	}
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return c.fail(0, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return c.fail(0, err)
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	if err := c.authorize(req); err != nil {
		return c.fail(0, fmt.Errorf("authenticate: %w", err))
	}

	resp, err := c.plain.Do(req)
	if err != nil {
		return c.fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.fail(resp.StatusCode, errors.New(strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return c.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *APIClient) fail(status int, err error) error {
	return &types.ExternalServiceError{Service: c.service, StatusCode: status, Err: err}
}

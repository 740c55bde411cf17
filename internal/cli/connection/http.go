// Package connection provides the vos-server admin API client.
package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/infra/buildinfo"
	"github.com/yndnr/vos-go/internal/server/httpserver/handler"
	"github.com/yndnr/vos-go/internal/service/reclaimer"
	"github.com/yndnr/vos-go/internal/vos"
)

// APIError is an error envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// HTTPClient provides HTTP communication with the server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	token   string

	tlsConfig *tls.Config
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTLS sets the client TLS settings. Bare "host:port" servers are
// then reached over https.
func WithTLS(cfg *tls.Config) Option {
	return func(c *HTTPClient) {
		c.tlsConfig = cfg
	}
}

// NewHTTPClient creates a client for server: "host:port", an http(s)
// URL, or "unix:///path" for the local admin socket. A non-empty token
// is sent as a bearer token.
func NewHTTPClient(server, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{token: token}
	for _, opt := range opts {
		opt(c)
	}

	if path, ok := strings.CutPrefix(server, "unix://"); ok {
		c.baseURL = "http://localhost"
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
		c.client = &http.Client{Timeout: 30 * time.Second, Transport: transport}
		return c
	}

	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		scheme := "http://"
		if c.tlsConfig != nil {
			scheme = "https://"
		}
		baseURL = scheme + baseURL
	}
	c.baseURL = baseURL

	c.client = &http.Client{Timeout: 30 * time.Second}
	if c.tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = c.tlsConfig
		c.client.Transport = transport
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Pool fetches GET /admin/v1/pool.
func (c *HTTPClient) Pool(ctx context.Context) (vos.PoolInfo, error) {
	var out vos.PoolInfo
	err := c.do(ctx, http.MethodGet, "/admin/v1/pool", nil, &out)
	return out, err
}

// Containers fetches GET /admin/v1/containers.
func (c *HTTPClient) Containers(ctx context.Context) ([]vos.ContSummary, error) {
	var out handler.ContainerListResponse
	err := c.do(ctx, http.MethodGet, "/admin/v1/containers", nil, &out)
	return out.Items, err
}

// Container fetches GET /admin/v1/containers/{id}.
func (c *HTTPClient) Container(ctx context.Context, id uuid.UUID) (vos.ContInfo, error) {
	var out vos.ContInfo
	err := c.do(ctx, http.MethodGet, "/admin/v1/containers/"+id.String(), nil, &out)
	return out, err
}

// Snapshots fetches GET /admin/v1/containers/{id}/snapshots.
func (c *HTTPClient) Snapshots(ctx context.Context, id uuid.UUID) ([]domain.Snapshot, error) {
	var out handler.SnapshotListResponse
	err := c.do(ctx, http.MethodGet, "/admin/v1/containers/"+id.String()+"/snapshots", nil, &out)
	return out.Items, err
}

// Discard posts a discard request for container id.
func (c *HTTPClient) Discard(ctx context.Context, id uuid.UUID, req handler.DiscardRequest) (handler.DiscardResponse, error) {
	var out handler.DiscardResponse
	err := c.do(ctx, http.MethodPost, "/admin/v1/containers/"+id.String()+"/discard", req, &out)
	return out, err
}

// Reclaimer fetches GET /admin/v1/reclaimer.
func (c *HTTPClient) Reclaimer(ctx context.Context) (handler.ReclaimerResponse, error) {
	var out handler.ReclaimerResponse
	err := c.do(ctx, http.MethodGet, "/admin/v1/reclaimer", nil, &out)
	return out, err
}

// RunReclaimer posts /admin/v1/reclaimer/run.
func (c *HTTPClient) RunReclaimer(ctx context.Context) (reclaimer.Report, error) {
	var out reclaimer.Report
	err := c.do(ctx, http.MethodPost, "/admin/v1/reclaimer/run", nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, target any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// addHeaders adds authentication and common headers.
func (c *HTTPClient) addHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "vos-cli/"+buildinfo.Get().Version)
}

// envelope mirrors handler.Response with the data left undecoded.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// ParseResponse decodes the envelope of resp and its data into target.
// It closes the body.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
			apiErr.RequestID = env.RequestID
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

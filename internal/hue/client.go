package hue

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client talks to the Hue bridge v1 REST API. All calls funnel through
// Request, which composes the URL from the fixed base and path segments.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new bridge client. The address may carry a scheme;
// plain host[:port] defaults to http. Bridges answering over https use a
// self-signed certificate, so verification is skipped.
func NewClient(address, token string, timeout time.Duration, rps float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rps <= 0 {
		rps = 10.0
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	address = strings.TrimRight(address, "/")

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	return &Client{
		baseURL: address,
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// url composes <base>/api/<token>/<segments...>
func (c *Client) url(segments ...string) string {
	parts := append([]string{c.baseURL, "api", c.token}, segments...)
	return strings.Join(parts, "/")
}

// Request performs one bridge call and returns the raw JSON payload.
// Transport failures and non-2xx responses are ErrBackend; payloads that are
// not JSON at all are ErrProtocol.
func (c *Client) Request(ctx context.Context, method string, body any, segments ...string) (json.RawMessage, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrBackend, method)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrProtocol, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(segments...), reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d from %s %s", ErrBackend, resp.StatusCode, method, strings.Join(segments, "/"))
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrProtocol)
	}

	log.Debug().
		Str("method", method).
		Strs("path", segments).
		Int("status", resp.StatusCode).
		Msg("Bridge request")

	return payload, nil
}

// get performs a GET and decodes the payload into out.
func (c *Client) get(ctx context.Context, out any, segments ...string) error {
	payload, err := c.Request(ctx, http.MethodGet, nil, segments...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

// Lights returns the bridge's lights keyed by index-string.
func (c *Client) Lights(ctx context.Context) (map[string]Light, error) {
	var lights map[string]Light
	if err := c.get(ctx, &lights, "lights"); err != nil {
		return nil, err
	}
	return lights, nil
}

// Light returns a single light by index.
func (c *Client) Light(ctx context.Context, index string) (*Light, error) {
	var light Light
	if err := c.get(ctx, &light, "lights", index); err != nil {
		return nil, err
	}
	return &light, nil
}

// Groups returns the bridge's groups keyed by group id.
func (c *Client) Groups(ctx context.Context) (map[string]Group, error) {
	var groups map[string]Group
	if err := c.get(ctx, &groups, "groups"); err != nil {
		return nil, err
	}
	return groups, nil
}

// SetLightState sends one state update for the light at index. The v1 API
// answers mutations with an array of success/error entries; any error entry
// fails the call.
func (c *Client) SetLightState(ctx context.Context, index string, update StateUpdate) error {
	payload, err := c.Request(ctx, http.MethodPut, update, "lights", index, "state")
	if err != nil {
		return err
	}

	var results []apiResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("%w: %s (%s)", ErrBackend, r.Error.Description, r.Error.Address)
		}
	}
	return nil
}

// Address returns the bridge base URL.
func (c *Client) Address() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

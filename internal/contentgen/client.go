// Package contentgen is the HTTP client for the external AI content service
// used by the ai-assisted strategies.
package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("content service unavailable: circuit open")

// APIError is a non-2xx response from the content service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("content service returned %d: %s", e.StatusCode, e.Message)
}

type generateRequest struct {
	Prompt  string           `json:"prompt"`
	Model   string           `json:"model,omitempty"`
	Context artifact.Context `json:"context"`
}

type generateResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

var _ strategy.ContentGenerator = (*Client)(nil)

// Client calls POST <base>/v1/generate.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *Breaker
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

// WithModel names the model requested from the service.
func WithModel(m string) Option {
	return func(cl *Client) { cl.model = m }
}

// New creates a client for baseURL. The apiKey is sent as a bearer token
// when set.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("contentgen: base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		breaker:    NewBreaker(5, 2, 30*time.Second),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker.OnStateChange == nil {
		c.breaker.OnStateChange = func(from, to State) {
			c.logger.Warn("content service circuit changed",
				zap.Stringer("from", from), zap.Stringer("to", to))
		}
	}
	return c, nil
}

// Breaker exposes the client's breaker.
func (c *Client) Breaker() *Breaker { return c.breaker }

// Generate asks the service for artifact content.
func (c *Client) Generate(ctx context.Context, prompt string, gctx artifact.Context) (string, error) {
	if !c.breaker.Allow() {
		return "", ErrCircuitOpen
	}
	content, err := c.generate(ctx, prompt, gctx)
	switch {
	case err == nil:
		c.breaker.Success()
	case countsAsFailure(ctx, err):
		c.breaker.Failure()
	}
	return content, err
}

func (c *Client) generate(ctx context.Context, prompt string, gctx artifact.Context) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Model: c.model, Context: gctx})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call content service: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("content service responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("kind", string(gctx.Kind)))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var out generateResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		if msg == "" {
			msg = resp.Status
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	return out.Content, nil
}

// countsAsFailure reports whether err says the service is unhealthy.
// Caller cancellation and 4xx responses do not trip the breaker.
func countsAsFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

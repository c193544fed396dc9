// Package publish posts sampling summaries to external systems.
package publish

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/pkg/surface"
)

const defaultGitHubAPI = "https://api.github.com"

// Target identifies the commit a check run is attached to.
type Target struct {
	InstallationID int64
	Owner          string
	Repo           string
	HeadSHA        string
}

// ParseTarget reads "owner/repo@sha".
func ParseTarget(s string, installationID int64) (Target, error) {
	repo, sha, ok := strings.Cut(s, "@")
	owner, name, ok2 := strings.Cut(repo, "/")
	if !ok || !ok2 || owner == "" || name == "" || sha == "" {
		return Target{}, fmt.Errorf("invalid target %q (want owner/repo@sha)", s)
	}
	return Target{InstallationID: installationID, Owner: owner, Repo: name, HeadSHA: sha}, nil
}

// GitHubPublisher publishes Check Runs to the GitHub API using
// GitHub App authentication (JWT -> installation token).
type GitHubPublisher struct {
	appID      int64
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	baseURL    string
	checkName  string
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a GitHubPublisher.
type Option func(*GitHubPublisher)

// WithBaseURL points the publisher at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(p *GitHubPublisher) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *GitHubPublisher) { p.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *GitHubPublisher) { p.logger = l }
}

// NewGitHubPublisher creates a publisher from the App ID and PEM-encoded
// private key (PKCS#1 or PKCS#8).
func NewGitHubPublisher(appID int64, privateKeyPEM []byte, opts ...Option) (*GitHubPublisher, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	p := &GitHubPublisher{
		appID:      appID,
		privateKey: key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultGitHubAPI,
		checkName:  "SampleForge",
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// PublishCheckRun creates a completed Check Run carrying the summary on
// the target commit.
func (p *GitHubPublisher) PublishCheckRun(ctx context.Context, t Target, s surface.Summary) error {
	token, err := p.installationToken(ctx, t.InstallationID)
	if err != nil {
		return fmt.Errorf("get installation token: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"name":       p.checkName,
		"head_sha":   t.HeadSHA,
		"status":     "completed",
		"conclusion": s.Conclusion,
		"output": map[string]string{
			"title":   s.Title,
			"summary": s.Body,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal check run: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/check-runs", p.baseURL, t.Owner, t.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post check run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github API error %d: %s", resp.StatusCode, string(respBody))
	}
	p.logger.Info("published check run",
		zap.String("repo", t.Owner+"/"+t.Repo),
		zap.String("sha", t.HeadSHA),
		zap.String("conclusion", s.Conclusion))
	return nil
}

// installationToken exchanges an App JWT for an installation access token.
func (p *GitHubPublisher) installationToken(ctx context.Context, installationID int64) (string, error) {
	token, err := appJWT(p.appID, p.now(), p.privateKey)
	if err != nil {
		return "", fmt.Errorf("generate JWT: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", p.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token request failed %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	return result.Token, nil
}

package artifact

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ContextBuilder turns raw repository or session data into a Context.
// Repository analysis lives behind this interface; the pipeline only
// consumes its output.
type ContextBuilder interface {
	Build(ctx context.Context, sessionID string, raw []byte) (Context, error)
}

// YAMLContextBuilder decodes a context document written in YAML (or JSON,
// which is a YAML subset).
type YAMLContextBuilder struct{}

// Build decodes raw and stamps the session ID when the document has none.
func (YAMLContextBuilder) Build(ctx context.Context, sessionID string, raw []byte) (Context, error) {
	var c Context
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Context{}, fmt.Errorf("parsing context: %w", err)
	}
	kind, err := ParseKind(string(c.Kind))
	if err != nil {
		return Context{}, fmt.Errorf("invalid context: %w", err)
	}
	c.Kind = kind
	if c.SessionID == "" {
		c.SessionID = sessionID
	}
	if err := c.Validate(); err != nil {
		return Context{}, fmt.Errorf("invalid context: %w", err)
	}
	return c, nil
}

// LoadContext reads a context document from disk.
func LoadContext(path, sessionID string) (Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Context{}, fmt.Errorf("reading context: %w", err)
	}
	return YAMLContextBuilder{}.Build(context.Background(), sessionID, data)
}

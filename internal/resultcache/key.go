// Package resultcache stores sampling results keyed by kind and session so
// that repeated requests for the same context skip generation and scoring.
package resultcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sampleforge/sampleforge/pkg/artifact"
)

const keySuffix = "/variants"

// Key returns the cache key for a kind and session.
func Key(kind artifact.Kind, sessionID string) string {
	return fmt.Sprintf("%s://%s%s", kind, sessionID, keySuffix)
}

// SessionPattern matches every kind cached for one session.
func SessionPattern(sessionID string) string {
	return "*://" + escapeGlob(sessionID) + keySuffix
}

// KindPattern matches every session cached for one kind.
func KindPattern(kind artifact.Kind) string {
	return string(kind) + "://*" + keySuffix
}

// EntryPattern matches exactly the entry for kind and session.
func EntryPattern(kind artifact.Kind, sessionID string) string {
	return string(kind) + "://" + escapeGlob(sessionID) + keySuffix
}

// Pattern selects the entries of one session, one kind, or the single
// entry for both. At least one must be given.
func Pattern(kind artifact.Kind, sessionID string) (string, error) {
	switch {
	case sessionID != "" && kind != "":
		return EntryPattern(kind, sessionID), nil
	case sessionID != "":
		return SessionPattern(sessionID), nil
	case kind != "":
		return KindPattern(kind), nil
	}
	return "", errors.New("a session or a kind is required")
}

// ParseKey splits a key produced by Key.
func ParseKey(key string) (artifact.Kind, string, error) {
	kind, rest, ok := strings.Cut(key, "://")
	if !ok || !strings.HasSuffix(rest, keySuffix) {
		return "", "", fmt.Errorf("malformed cache key %q", key)
	}
	k, err := artifact.ParseKind(kind)
	if err != nil {
		return "", "", err
	}
	return k, strings.TrimSuffix(rest, keySuffix), nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

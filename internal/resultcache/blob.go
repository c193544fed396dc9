package resultcache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const blobExt = ".json"

type envelope struct {
	Key       string    `json:"key"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Value     []byte    `json:"value"`
}

// BlobBackend stores each entry as one JSON envelope object. Object names
// are the URL-safe base64 of the key under prefix, so any key maps to a
// single flat name. Expired objects are deleted when next read.
type BlobBackend struct {
	store  BlobStore
	prefix string
	now    Clock
}

// NewBlobBackend wraps store. A nil clock uses time.Now.
func NewBlobBackend(store BlobStore, prefix string, now Clock) *BlobBackend {
	if now == nil {
		now = time.Now
	}
	return &BlobBackend{store: store, prefix: prefix, now: now}
}

func (b *BlobBackend) objectName(key string) string {
	return b.prefix + base64.RawURLEncoding.EncodeToString([]byte(key)) + blobExt
}

func (b *BlobBackend) keyOf(name string) (string, bool) {
	enc, ok := strings.CutPrefix(name, b.prefix)
	if !ok {
		return "", false
	}
	enc, ok = strings.CutSuffix(enc, blobExt)
	if !ok || strings.Contains(enc, "/") {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", false
	}
	if _, _, err := ParseKey(string(raw)); err != nil {
		return "", false
	}
	return string(raw), true
}

func (b *BlobBackend) Get(ctx context.Context, key string) ([]byte, error) {
	name := b.objectName(key)
	data, err := b.store.Get(ctx, name)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode cache envelope %s: %w", name, err)
	}
	if env.Key != key {
		return nil, ErrMiss
	}
	if expired(env.ExpiresAt, b.now()) {
		if err := b.store.Delete(ctx, name); err != nil {
			return nil, err
		}
		return nil, ErrMiss
	}
	return env.Value, nil
}

func (b *BlobBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := b.now()
	data, err := json.Marshal(envelope{
		Key:       key,
		StoredAt:  now,
		ExpiresAt: expiry(now, ttl),
		Value:     value,
	})
	if err != nil {
		return fmt.Errorf("encode cache envelope: %w", err)
	}
	return b.store.Put(ctx, b.objectName(key), data)
}

func (b *BlobBackend) Invalidate(ctx context.Context, pattern string) (int, error) {
	re, err := CompileGlob(pattern)
	if err != nil {
		return 0, err
	}
	names, err := b.store.List(ctx, b.prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		key, ok := b.keyOf(name)
		if !ok || !re.MatchString(key) {
			continue
		}
		if err := b.store.Delete(ctx, name); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Purge reads every envelope under the prefix and deletes the expired
// ones. Undecodable objects are left in place.
func (b *BlobBackend) Purge(ctx context.Context) (int, error) {
	names, err := b.store.List(ctx, b.prefix)
	if err != nil {
		return 0, err
	}
	now := b.now()
	n := 0
	for _, name := range names {
		if _, ok := b.keyOf(name); !ok {
			continue
		}
		data, err := b.store.Get(ctx, name)
		if errors.Is(err, ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		var env envelope
		if json.Unmarshal(data, &env) != nil || !expired(env.ExpiresAt, now) {
			continue
		}
		if err := b.store.Delete(ctx, name); err != nil && !errors.Is(err, ErrBlobNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

// Close closes the underlying store when it holds resources.
func (b *BlobBackend) Close() error {
	if c, ok := b.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

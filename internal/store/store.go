package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrCorrupt  = errors.New("corrupt record")
)

// KV is the string-keyed persistent storage every local store is built on.
// Get returns ErrNotFound for absent keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists the keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Version is the schema version written into every envelope. Envelopes with
// another version read as absent.
const Version = 1

// Envelope wraps persisted values. SavedAt (unix milliseconds) is only set by
// the cache layer.
type Envelope[T any] struct {
	Version int   `json:"version"`
	SavedAt int64 `json:"savedAt,omitempty"`
	Data    T     `json:"data"`
}

// SavedTime returns SavedAt as a time.
func (e Envelope[T]) SavedTime() time.Time {
	return time.UnixMilli(e.SavedAt)
}

// DecodeEnvelope parses raw. It reports false for a version mismatch and
// ErrCorrupt for undecodable input.
func DecodeEnvelope[T any](raw []byte, version int) (Envelope[T], bool, error) {
	var env Envelope[T]
	var head struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return env, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if head.Version == nil || *head.Version != version {
		return env, false, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return env, true, nil
}

// GetEnvelope loads and decodes key. Absent keys and version mismatches
// report false with a nil error.
func GetEnvelope[T any](ctx context.Context, kv KV, key string, version int) (Envelope[T], bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Envelope[T]{}, false, nil
	}
	if err != nil {
		return Envelope[T]{}, false, err
	}
	env, ok, err := DecodeEnvelope[T](raw, version)
	if err != nil {
		return env, false, fmt.Errorf("%s: %w", key, err)
	}
	return env, ok, nil
}

// PutEnvelope encodes env and stores it under key.
func PutEnvelope[T any](ctx context.Context, kv KV, key string, env Envelope[T]) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

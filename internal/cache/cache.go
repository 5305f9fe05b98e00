// Package cache is the versioned read-through layer in front of the local
// stores. It is never the system of record.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/store"
)

// Version guards the cached shapes; bump it when a cached type changes.
const Version = 1

// Cache keeps raw envelopes in memory and in the persistent KV.
type Cache struct {
	kv      store.KV
	version int
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.RWMutex
	memory map[string][]byte
	gen    map[string]uint64 // bumped by every invalidation of a key

	inflight singleflight.Group
	wg       sync.WaitGroup
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

func WithVersion(v int) Option {
	return func(c *Cache) { c.version = v }
}

func New(kv store.KV, opts ...Option) *Cache {
	c := &Cache{
		kv:      kv,
		version: Version,
		now:     time.Now,
		logger:  slog.Default(),
		memory:  make(map[string][]byte),
		gen:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write stores data in memory and in the KV.
func Write[T any](ctx context.Context, c *Cache, key string, data T) error {
	raw, err := encode(c, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.memory[key] = raw
	c.mu.Unlock()
	return c.kv.Set(ctx, key, raw)
}

// writeIfCurrent is Write that gives up when key was invalidated after gen
// was taken. It reports whether the value was stored.
func writeIfCurrent[T any](ctx context.Context, c *Cache, key string, gen uint64, data T) (bool, error) {
	raw, err := encode(c, data)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[key] != gen {
		return false, nil
	}
	c.memory[key] = raw
	return true, c.kv.Set(ctx, key, raw)
}

func encode[T any](c *Cache, data T) ([]byte, error) {
	return json.Marshal(store.Envelope[T]{Version: c.version, SavedAt: c.now().UnixMilli(), Data: data})
}

func (c *Cache) generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen[key]
}

// PeekMemory looks only at the memory layer.
func PeekMemory[T any](c *Cache, key string) (T, bool) {
	env, ok := decode[T](c, c.memoryRaw(key))
	return env.Data, ok
}

// Peek looks at memory, then at the KV, without a freshness check.
func Peek[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	env, ok, err := lookup[T](ctx, c, key)
	return env.Data, ok, err
}

// Read is Peek that treats entries older than maxAge as absent.
func Read[T any](ctx context.Context, c *Cache, key string, maxAge time.Duration) (T, bool, error) {
	var zero T
	if env, ok := decode[T](c, c.memoryRaw(key)); ok && c.fresh(env.SavedAt, maxAge) {
		return env.Data, true, nil
	}
	env, ok, err := load[T](ctx, c, key)
	if err != nil || !ok || !c.fresh(env.SavedAt, maxAge) {
		return zero, false, err
	}
	return env.Data, true, nil
}

// Invalidate drops keys from both layers. A refresh that fetched before the
// invalidation does not store its result.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.memory, k)
		c.gen[k]++
	}
	c.mu.Unlock()

	var errs []error
	for _, k := range keys {
		errs = append(errs, c.kv.Delete(ctx, k))
	}
	return errors.Join(errs...)
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	for k := range c.memory {
		if strings.HasPrefix(k, prefix) {
			delete(c.memory, k)
			c.gen[k]++
		}
	}
	c.mu.Unlock()

	keys, err := c.kv.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	return c.Invalidate(ctx, keys...)
}

// Wait blocks until background refreshes started by Revalidate finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Revalidate serves key stale-while-revalidate. A cached value is returned at
// once and refreshed from fetch in the background; on a miss fetch runs
// inline and its result is cached. Concurrent refreshes of one key coalesce.
func Revalidate[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, error) {
	cached, ok, err := Peek[T](ctx, c, key)
	if err != nil {
		c.logger.Warn("cache peek failed", "key", key, "error", err)
	}
	if ok {
		bg := context.WithoutCancel(ctx)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := refresh(bg, c, key, fetch); err != nil {
				c.logger.Warn("cache refresh failed", "key", key, "error", err)
			}
		}()
		return cached, nil
	}
	return refresh(ctx, c, key, fetch)
}

func refresh[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, error) {
	v, err, _ := c.inflight.Do(key, func() (any, error) {
		gen := c.generation(key)
		data, err := fetch(ctx)
		if err != nil {
			return data, err
		}
		stored, err := writeIfCurrent(ctx, c, key, gen, data)
		if err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		} else if !stored {
			c.logger.Debug("cache refresh outdated by invalidation", "key", key)
		}
		return data, nil
	})
	data, _ := v.(T)
	return data, err
}

func (c *Cache) memoryRaw(key string) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memory[key]
}

func (c *Cache) fresh(savedAt int64, maxAge time.Duration) bool {
	return c.now().UnixMilli()-savedAt <= maxAge.Milliseconds()
}

func lookup[T any](ctx context.Context, c *Cache, key string) (store.Envelope[T], bool, error) {
	if env, ok := decode[T](c, c.memoryRaw(key)); ok {
		return env, true, nil
	}
	return load[T](ctx, c, key)
}

// load reads the KV layer and mirrors the raw entry into memory.
func load[T any](ctx context.Context, c *Cache, key string) (store.Envelope[T], bool, error) {
	raw, err := c.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return store.Envelope[T]{}, false, nil
	}
	if err != nil {
		return store.Envelope[T]{}, false, err
	}
	c.mu.Lock()
	c.memory[key] = raw
	c.mu.Unlock()
	env, ok := decode[T](c, raw)
	return env, ok, nil
}

// decode treats unreadable and mismatched entries as absent.
func decode[T any](c *Cache, raw []byte) (store.Envelope[T], bool) {
	if raw == nil {
		return store.Envelope[T]{}, false
	}
	env, ok, err := store.DecodeEnvelope[T](raw, c.version)
	if err != nil || !ok {
		return store.Envelope[T]{}, false
	}
	return env, true
}

func OverviewKey(lang questionbank.Language, userID string) string {
	return key("overview", lang, userID)
}

func TopicKey(lang questionbank.Language, userID, slug string) string {
	return key("topic", lang, userID, slug)
}

// UserTopicsPrefix matches every cached topic detail of a user.
func UserTopicsPrefix(lang questionbank.Language, userID string) string {
	return key("topic", lang, userID) + ":"
}

func SessionKey(lang questionbank.Language, userID, sessionID string) string {
	return key("session", lang, userID, sessionID)
}

func TopicBankKey(lang questionbank.Language, topicID string) string {
	return key("topic-bank", lang, topicID)
}

func key(entity string, lang questionbank.Language, scope ...string) string {
	parts := append([]string{"cache", "theory", entity, string(lang)}, scope...)
	return strings.Join(parts, ":")
}

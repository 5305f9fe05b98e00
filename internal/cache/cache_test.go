package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/remaimber-it/drivetheory/internal/cache"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCache(kv store.KV) (*cache.Cache, *clock) {
	clk := &clock{t: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
	return cache.New(kv, cache.WithClock(clk.now)), clk
}

type payload struct {
	Value string `json:"value"`
}

func TestWriteAndPeek(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	c, _ := newCache(kv)

	if _, ok := cache.PeekMemory[payload](c, "k"); ok {
		t.Fatal("expected empty memory layer")
	}
	if err := cache.Write(ctx, c, "k", payload{Value: "v1"}); err != nil {
		t.Fatal(err)
	}
	if got, ok := cache.PeekMemory[payload](c, "k"); !ok || got.Value != "v1" {
		t.Errorf("expected memory hit, got %+v %v", got, ok)
	}

	// a second cache over the same KV only has the persistent layer
	other, _ := newCache(kv)
	if _, ok := cache.PeekMemory[payload](other, "k"); ok {
		t.Error("expected cold memory layer")
	}
	got, ok, err := cache.Peek[payload](ctx, other, "k")
	if err != nil || !ok || got.Value != "v1" {
		t.Errorf("expected persistent hit, got %+v %v %v", got, ok, err)
	}
	if _, ok := cache.PeekMemory[payload](other, "k"); !ok {
		t.Error("expected persistent hit to warm memory")
	}
}

func TestRead_MaxAge(t *testing.T) {
	ctx := context.Background()
	c, clk := newCache(store.NewMemoryKV())
	cache.Write(ctx, c, "k", payload{Value: "v"})

	clk.t = clk.t.Add(30 * time.Second)
	if _, ok, _ := cache.Read[payload](ctx, c, "k", time.Minute); !ok {
		t.Error("expected fresh entry")
	}
	clk.t = clk.t.Add(time.Minute)
	if _, ok, _ := cache.Read[payload](ctx, c, "k", time.Minute); ok {
		t.Error("expected stale entry to read as absent")
	}
	if _, ok, _ := cache.Peek[payload](ctx, c, "k"); !ok {
		t.Error("expected peek to ignore age")
	}
}

func TestVersionMismatch(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	old := cache.New(kv, cache.WithVersion(1))
	cache.Write(ctx, old, "k", payload{Value: "v"})

	current := cache.New(kv, cache.WithVersion(2))
	if _, ok, err := cache.Peek[payload](ctx, current, "k"); ok || err != nil {
		t.Errorf("expected old version to read as absent, got ok=%v err=%v", ok, err)
	}
}

func TestInvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	c, _ := newCache(kv)
	lang := questionbank.LangUzLatn
	cache.Write(ctx, c, cache.TopicKey(lang, "u1", "section-1"), payload{})
	cache.Write(ctx, c, cache.TopicKey(lang, "u1", "section-2"), payload{})
	cache.Write(ctx, c, cache.TopicKey(lang, "u2", "section-1"), payload{})

	if err := c.InvalidatePrefix(ctx, cache.UserTopicsPrefix(lang, "u1")); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := cache.Peek[payload](ctx, c, cache.TopicKey(lang, "u1", "section-2")); ok {
		t.Error("expected u1 topics to be invalidated")
	}
	if _, ok, _ := cache.Peek[payload](ctx, c, cache.TopicKey(lang, "u2", "section-1")); !ok {
		t.Error("expected u2 topics to stay")
	}
}

func TestRevalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(store.NewMemoryKV())
	var calls atomic.Int32
	fetch := func(context.Context) (payload, error) {
		n := calls.Add(1)
		return payload{Value: string(rune('0' + n))}, nil
	}

	first, err := cache.Revalidate(ctx, c, "k", fetch)
	if err != nil || first.Value != "1" {
		t.Fatalf("expected inline fetch on miss, got %+v %v", first, err)
	}

	second, err := cache.Revalidate(ctx, c, "k", fetch)
	if err != nil || second.Value != "1" {
		t.Fatalf("expected cached value, got %+v %v", second, err)
	}
	c.Wait()

	third, _ := cache.Revalidate(ctx, c, "k", fetch)
	c.Wait()
	if third.Value != "2" {
		t.Errorf("expected background refresh to update the entry, got %+v", third)
	}
}

func TestRevalidate_InvalidatedDuringRefresh(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(store.NewMemoryKV())
	if err := cache.Write(ctx, c, "k", payload{Value: "cached"}); err != nil {
		t.Fatal(err)
	}

	fetching := make(chan struct{})
	release := make(chan struct{})
	got, err := cache.Revalidate(ctx, c, "k", func(context.Context) (payload, error) {
		close(fetching)
		<-release
		return payload{Value: "before write"}, nil
	})
	if err != nil || got.Value != "cached" {
		t.Fatalf("expected the cached value, got %+v %v", got, err)
	}

	<-fetching
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	close(release)
	c.Wait()

	if v, ok, _ := cache.Peek[payload](ctx, c, "k"); ok {
		t.Errorf("expected the outdated refresh to be dropped, got %+v", v)
	}

	if _, err := cache.Revalidate(ctx, c, "k", func(context.Context) (payload, error) {
		return payload{Value: "fresh"}, nil
	}); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := cache.Peek[payload](ctx, c, "k"); !ok || v.Value != "fresh" {
		t.Errorf("expected a refresh after the invalidation to be stored, got %+v %v", v, ok)
	}
}

func TestRevalidate_MissError(t *testing.T) {
	c, _ := newCache(store.NewMemoryKV())
	boom := errors.New("boom")

	_, err := cache.Revalidate(context.Background(), c, "k", func(context.Context) (payload, error) {
		return payload{}, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected fetch error, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	if got := cache.OverviewKey(questionbank.LangRu, "u1"); got != "cache:theory:overview:ru:u1" {
		t.Errorf("unexpected overview key %q", got)
	}
	if got := cache.SessionKey(questionbank.LangRu, "u1", "s1"); got != "cache:theory:session:ru:u1:s1" {
		t.Errorf("unexpected session key %q", got)
	}
	if got := cache.TopicBankKey(questionbank.LangUzCyrl, "3"); got != "cache:theory:topic-bank:uz-Cyrl:3" {
		t.Errorf("unexpected topic bank key %q", got)
	}
}

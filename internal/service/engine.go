// Package service holds the session engine: session creation, answering,
// completion, background finalization and the offline sync runner.
package service

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/remaimber-it/drivetheory/internal/cache"
	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/remote"
	"github.com/remaimber-it/drivetheory/internal/store"
)

// Deps are the collaborators of an Engine. Remote, Logger, Now and Rand are
// optional.
type Deps struct {
	Banks     *questionbank.Registry
	Stats     *store.StatsStore
	Sessions  *store.SessionStore
	History   *store.HistoryStore
	Bookmarks *store.BookmarkStore
	Settings  *store.SettingsStore
	Cache     *cache.Cache

	Remote remote.Pusher
	Logger *slog.Logger
	Now    func() time.Time
	Rand   practicesession.Rand
}

// LocalDeps wires every local store and the cache onto one KV.
func LocalDeps(kv store.KV, banks *questionbank.Registry, logger *slog.Logger, now func() time.Time) Deps {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Deps{
		Banks:     banks,
		Stats:     store.NewStatsStore(kv),
		Sessions:  store.NewSessionStore(kv),
		History:   store.NewHistoryStore(kv),
		Bookmarks: store.NewBookmarkStore(kv, now),
		Settings:  store.NewSettingsStore(kv),
		Cache:     cache.New(kv, cache.WithClock(now), cache.WithLogger(logger)),
		Logger:    logger,
		Now:       now,
	}
}

// Engine is safe for concurrent use. Read-modify-write cycles on a user's
// stats and sessions are serialized per user.
type Engine struct {
	banks     *questionbank.Registry
	stats     *store.StatsStore
	sessions  *store.SessionStore
	history   *store.HistoryStore
	bookmarks *store.BookmarkStore
	settings  *store.SettingsStore
	cache     *cache.Cache
	remote    remote.Pusher
	logger    *slog.Logger
	now       func() time.Time
	rng       *lockedRand

	locks userLocks
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		banks:     d.Banks,
		stats:     d.Stats,
		sessions:  d.Sessions,
		history:   d.History,
		bookmarks: d.Bookmarks,
		settings:  d.Settings,
		cache:     d.Cache,
		remote:    d.Remote,
		logger:    d.Logger,
		now:       d.Now,
	}
	if e.remote == nil {
		e.remote = remote.Noop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	src := d.Rand
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e.rng = &lockedRand{src: src}
	e.locks.locks = make(map[string]*userLock)
	return e
}

// clock is the engine time: UTC with millisecond precision, matching what
// survives a JSON round trip.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

func (e *Engine) bank(ctx context.Context, lang questionbank.Language) (*questionbank.Bank, error) {
	return e.banks.Bank(ctx, lang)
}

// invalidate drops the user's derived read models after a write.
func (e *Engine) invalidate(ctx context.Context, userID string, sessionIDs ...string) {
	for _, lang := range questionbank.SupportedLanguages {
		keys := []string{cache.OverviewKey(lang, userID)}
		for _, sid := range sessionIDs {
			keys = append(keys, cache.SessionKey(lang, userID, sid))
		}
		if err := e.cache.Invalidate(ctx, keys...); err != nil {
			e.logger.Warn("cache invalidation failed", "user_id", userID, "error", err)
		}
		if err := e.cache.InvalidatePrefix(ctx, cache.UserTopicsPrefix(lang, userID)); err != nil {
			e.logger.Warn("cache invalidation failed", "user_id", userID, "error", err)
		}
	}
}

type lockedRand struct {
	mu  sync.Mutex
	src practicesession.Rand
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Intn(n)
}

// userLocks hands out one mutex per user id and forgets it once unused.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

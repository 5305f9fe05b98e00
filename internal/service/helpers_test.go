package service_test

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/remote"
	"github.com/remaimber-it/drivetheory/internal/service"
	"github.com/remaimber-it/drivetheory/internal/store"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// fakeClock ticks one second per reading so every write gets its own time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakePusher records successful pushes. before, when set, runs ahead of
// every push with its 1-based call number; a non-nil error fails that push.
type fakePusher struct {
	mu     sync.Mutex
	err    error
	calls  int
	before func(ctx context.Context, call int) error
	pushes []remote.Push
}

func (p *fakePusher) Push(ctx context.Context, push remote.Push) error {
	p.mu.Lock()
	p.calls++
	call, before := p.calls, p.before
	p.mu.Unlock()

	if before != nil {
		if err := before(ctx, call); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, push)
	return nil
}

func (p *fakePusher) setBefore(fn func(ctx context.Context, call int) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.before = fn
}

func (p *fakePusher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func (p *fakePusher) last() remote.Push {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pushes[len(p.pushes)-1]
}

type fixture struct {
	engine *service.Engine
	deps   service.Deps
	kv     *store.MemoryKV
	pusher *fakePusher
}

func newFixture(t *testing.T, questions []questionbank.RawQuestion) *fixture {
	t.Helper()
	kv := store.NewMemoryKV()
	clock := &fakeClock{t: start}
	banks := questionbank.NewRegistry(questionbank.StaticSource{
		questionbank.LangUzLatn: {Questions: questions},
	}, questionbank.BuildOptions{})

	deps := service.LocalDeps(kv, banks, nil, clock.Now)
	pusher := &fakePusher{}
	deps.Remote = pusher
	deps.Rand = rand.New(rand.NewSource(7))

	f := &fixture{engine: service.NewEngine(deps), deps: deps, kv: kv, pusher: pusher}
	t.Cleanup(deps.Cache.Wait)
	return f
}

func question(id, topic string) questionbank.RawQuestion {
	return questionbank.RawQuestion{
		ID:            questionbank.FlexString(id),
		Question:      "Prompt " + id,
		Answers:       []string{"first", "second", "third"},
		CorrectAnswer: "2",
		Topic:         questionbank.FlexString(topic),
	}
}

// topicThree is a bank with the single topic "3" holding Q1, Q2 and Q3.
func topicThree() []questionbank.RawQuestion {
	return []questionbank.RawQuestion{
		question("Q1", "3"),
		question("Q2", "3"),
		question("Q3", "3"),
	}
}

// largeBank has two topics of n questions each, ids "1".."2n".
func largeBank(n int) []questionbank.RawQuestion {
	var out []questionbank.RawQuestion
	for i := 1; i <= 2*n; i++ {
		topic := "1"
		if i > n {
			topic = "2"
		}
		out = append(out, question(strconv.Itoa(i), topic))
	}
	return out
}

func correctOption(questionID string) string { return questionID + ":2" }
func wrongOption(questionID string) string { return questionID + ":1" }

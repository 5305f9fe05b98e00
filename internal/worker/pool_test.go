package worker_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/remaimber-it/drivetheory/internal/worker"
)

func TestPool_RunsAllJobs(t *testing.T) {
	p := worker.NewPool[int](3, 10)

	for i := 0; i < 10; i++ {
		n := i
		if err := p.Submit(context.Background(), strconv.Itoa(n), func(context.Context) int { return n * n }); err != nil {
			t.Fatalf("submit %d: %v", n, err)
		}
	}
	go p.Close()

	var got []int
	for r := range p.Results() {
		got = append(got, r.Output)
	}
	sort.Ints(got)

	if len(got) != 10 {
		t.Fatalf("expected 10 results, got %d", len(got))
	}
	for i, v := range got {
		if v != i*i {
			t.Errorf("result %d: expected %d, got %d", i, i*i, v)
		}
	}
}

func TestPool_ResultCarriesJobID(t *testing.T) {
	p := worker.NewPool[string](1, 1)
	defer p.Close()

	if err := p.Submit(context.Background(), "job-1", func(context.Context) string { return "done" }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	r := <-p.Results()
	if r.JobID != "job-1" || r.Output != "done" {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := worker.NewPool[int](1, 1)
	p.Close()

	err := p.Submit(context.Background(), "x", func(context.Context) int { return 1 })
	if !errors.Is(err, worker.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if p.TrySubmit("y", func(context.Context) int { return 1 }) {
		t.Error("expected TrySubmit to fail on a closed pool")
	}
}

func TestPool_TrySubmitFullBuffer(t *testing.T) {
	p := worker.NewPool[int](1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	blocking := func(context.Context) int {
		close(started)
		<-release
		return 0
	}
	if !p.TrySubmit("a", blocking) {
		t.Fatal("expected first job to be accepted")
	}
	<-started
	if !p.TrySubmit("b", func(context.Context) int { return 0 }) {
		t.Fatal("expected second job to fit in the buffer")
	}
	if p.TrySubmit("c", func(context.Context) int { return 0 }) {
		t.Error("expected third job to be rejected")
	}

	close(release)
	go p.Close()
	for range p.Results() {
	}
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	p := worker.NewPool[int](1, 0)
	release := make(chan struct{})
	defer func() {
		close(release)
		go p.Close()
		for range p.Results() {
		}
	}()

	if err := p.Submit(context.Background(), "a", func(context.Context) int { <-release; return 0 }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, "b", func(context.Context) int { return 0 })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPool_StopCancelsJobs(t *testing.T) {
	p := worker.NewPool[error](1, 1)
	started := make(chan struct{})

	if err := p.Submit(context.Background(), "a", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	go p.Stop()
	r, ok := <-p.Results()
	if !ok {
		t.Fatal("expected a result before the channel closed")
	}
	if !errors.Is(r.Output, context.Canceled) {
		t.Errorf("expected canceled, got %v", r.Output)
	}
}

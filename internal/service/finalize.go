package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/queue"
	"github.com/remaimber-it/drivetheory/internal/worker"
)

// FinalizeRequest contains everything needed to close a session from the
// answers the client collected.
type FinalizeRequest struct {
	UserID    string
	Language  questionbank.Language
	SessionID string
	Answers   []practicesession.Answer
}

// Finalizer closes sessions the way a test screen does: the completion is
// queued first, applied locally, and then pushed in the background. It owns
// the per-session WaitGroups of in-flight pushes.
type Finalizer struct {
	engine *Engine
	queue  *queue.Queue
	pool   *worker.Pool[error]
	logger *slog.Logger

	mu      sync.RWMutex
	pending map[string]*inflight // sessionID → pushes in flight
	drained chan struct{}
}

// NewFinalizer starts the given number of background pushers. Close must be
// called to release them.
func NewFinalizer(engine *Engine, q *queue.Queue, workers int, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Finalizer{
		engine:  engine,
		queue:   q,
		pool:    worker.NewPool[error](workers, 64),
		logger:  logger,
		pending: make(map[string]*inflight),
		drained: make(chan struct{}),
	}
	go f.collect()
	return f
}

// Finalize commits the completion locally and schedules the remote push.
// The push runs even after the caller's context ends; if it fails the item
// stays queued for the sync runner.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (CompleteResult, error) {
	rev, err := f.queue.EnqueueRevision(ctx, queue.PendingSessionCompletion{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Language:  req.Language,
		Answers:   req.Answers,
	})
	if err != nil {
		return CompleteResult{}, storageErr("enqueue completion", err)
	}

	res, err := f.engine.CompleteSession(ctx, CompleteRequest{
		UserID:    req.UserID,
		Language:  req.Language,
		SessionID: req.SessionID,
		Answers:   req.Answers,
	})
	if err != nil {
		if isNotFound(err) {
			if rmErr := f.queue.RemoveIfRevision(ctx, req.UserID, req.SessionID, rev); rmErr != nil {
				f.logger.Error("failed to drop queued completion", "session_id", req.SessionID, "error", rmErr)
			}
		}
		return res, err
	}

	f.submitPush(req, rev)
	return res, nil
}

type inflight struct {
	wg sync.WaitGroup
	n  int
}

func (f *Finalizer) submitPush(req FinalizeRequest, rev int64) {
	f.begin(req.SessionID)

	ok := f.pool.TrySubmit(req.SessionID, func(ctx context.Context) error {
		defer f.end(req.SessionID)
		return f.push(ctx, req, rev)
	})
	if !ok {
		f.end(req.SessionID)
		f.logger.Warn("background push skipped, left for sync",
			"user_id", req.UserID,
			"session_id", req.SessionID,
		)
	}
}

// push re-runs the completion with remote sync and drops the queued item
// once delivered, unless another Finalize merged into it meanwhile.
func (f *Finalizer) push(ctx context.Context, req FinalizeRequest, rev int64) error {
	_, err := f.engine.CompleteSession(ctx, CompleteRequest{
		UserID:     req.UserID,
		Language:   req.Language,
		SessionID:  req.SessionID,
		Answers:    req.Answers,
		SyncRemote: true,
	})
	if err != nil {
		return err
	}
	return f.queue.RemoveIfRevision(ctx, req.UserID, req.SessionID, rev)
}

func (f *Finalizer) begin(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[sessionID]
	if !ok {
		p = &inflight{}
		f.pending[sessionID] = p
	}
	p.n++
	p.wg.Add(1)
}

func (f *Finalizer) end(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pending[sessionID]
	p.n--
	if p.n == 0 {
		delete(f.pending, sessionID)
	}
	p.wg.Done()
}

// WaitForSession blocks until every background push of a session has finished.
func (f *Finalizer) WaitForSession(sessionID string) {
	f.mu.RLock()
	p, ok := f.pending[sessionID]
	f.mu.RUnlock()

	if ok {
		p.wg.Wait()
	}
}

func (f *Finalizer) collect() {
	defer close(f.drained)
	for r := range f.pool.Results() {
		if r.Output == nil {
			continue
		}
		var syncErr *RemoteSyncError
		if errors.As(r.Output, &syncErr) {
			f.logger.Warn("background push failed",
				"session_id", r.JobID,
				"error", syncErr.Err,
			)
			continue
		}
		f.logger.Error("background completion failed",
			"session_id", r.JobID,
			"error", r.Output,
		)
	}
}

// Close waits for queued pushes and stops the workers.
func (f *Finalizer) Close() {
	f.pool.Close()
	<-f.drained
}

// Shutdown is Close bounded by ctx. Pushes still running when ctx ends are
// cancelled; their completions stay queued for the sync runner.
func (f *Finalizer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Close()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		f.pool.Stop()
		<-done
		return ctx.Err()
	}
}

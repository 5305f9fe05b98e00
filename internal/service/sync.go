package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/remaimber-it/drivetheory/internal/queue"
	"github.com/remaimber-it/drivetheory/internal/worker"
)

// DefaultSyncInterval is how often queued completions are retried.
const DefaultSyncInterval = 15 * time.Second

// SyncRunner drains the offline queue. Concurrent flushes of one user share
// a single run.
type SyncRunner struct {
	engine   *Engine
	queue    *queue.Queue
	interval time.Duration
	logger   *slog.Logger

	group singleflight.Group
}

func NewSyncRunner(engine *Engine, q *queue.Queue, interval time.Duration, logger *slog.Logger) *SyncRunner {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncRunner{engine: engine, queue: q, interval: interval, logger: logger}
}

// Run flushes every user on each tick until ctx is done.
func (r *SyncRunner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.FlushAll(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("sync run failed", "error", err)
			}
		}
	}
}

// FlushUser retries the user's queued completions.
func (r *SyncRunner) FlushUser(ctx context.Context, userID string) (queue.FlushResult, error) {
	v, err, shared := r.group.Do(userID, func() (any, error) {
		return r.queue.Flush(context.WithoutCancel(ctx), userID, r.process)
	})
	if shared {
		r.logger.Debug("joined running flush", "user_id", userID)
	}
	res, _ := v.(queue.FlushResult)
	return res, err
}

// flushConcurrency bounds how many users FlushAll flushes at once.
const flushConcurrency = 4

type userFlush struct {
	res queue.FlushResult
	err error
}

// FlushAll flushes every user with queued items. Per-user failures are
// joined into the returned error.
func (r *SyncRunner) FlushAll(ctx context.Context) (map[string]queue.FlushResult, error) {
	users, err := r.queue.Users(ctx)
	if err != nil {
		return nil, storageErr("list queued users", err)
	}
	results := make(map[string]queue.FlushResult, len(users))
	if len(users) == 0 {
		return results, nil
	}

	pool := worker.NewPool[userFlush](flushConcurrency, len(users))
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		if err := pool.Submit(ctx, userID, func(ctx context.Context) userFlush {
			res, err := r.FlushUser(ctx, userID)
			return userFlush{res: res, err: err}
		}); err != nil {
			break
		}
	}
	pool.Close()

	var errs []error
	for out := range pool.Results() {
		if out.Output.err != nil {
			errs = append(errs, out.Output.err)
			continue
		}
		res := out.Output.res
		results[out.JobID] = res
		if res.Synced > 0 || res.Pending > 0 {
			r.logger.Info("queue flushed",
				"user_id", out.JobID,
				"synced", res.Synced,
				"pending", res.Pending,
			)
		}
	}
	return results, errors.Join(errs...)
}

// process delivers one queued completion. A session that no longer exists
// locally can never be delivered and is dropped.
func (r *SyncRunner) process(ctx context.Context, item queue.PendingSessionCompletion) error {
	_, err := r.engine.CompleteSession(ctx, CompleteRequest{
		UserID:     item.UserID,
		Language:   item.Language,
		SessionID:  item.SessionID,
		Answers:    item.Answers,
		SyncRemote: true,
	})
	if isNotFound(err) {
		r.logger.Warn("dropping queued completion of unknown session",
			"user_id", item.UserID,
			"session_id", item.SessionID,
		)
		return nil
	}
	return err
}

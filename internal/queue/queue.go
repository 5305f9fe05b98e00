// Package queue is the durable offline queue of session completions that
// still have to reach the remote store.
package queue

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
	"github.com/remaimber-it/drivetheory/internal/store"
)

const KindCompleteSession = "complete_session"

const keyPrefix = "queue:theory:pending:"

func Key(userID string) string {
	return keyPrefix + userID
}

// PendingSessionCompletion is one queued completion, unique per
// (UserID, SessionID). Revision is bumped on every enqueue so a flush can
// tell whether an item changed while it was being processed.
type PendingSessionCompletion struct {
	Kind      string                   `json:"kind"`
	UserID    string                   `json:"userId"`
	SessionID string                   `json:"sessionId"`
	Language  questionbank.Language    `json:"language,omitempty"`
	Answers   []practicesession.Answer `json:"answers"`
	QueuedAt  time.Time                `json:"queuedAt"`
	Revision  int64                    `json:"revision"`
}

// Processor delivers one item. A nil error drops the item from the queue.
type Processor func(ctx context.Context, item PendingSessionCompletion) error

type FlushResult struct {
	Synced  int `json:"synced"`
	Pending int `json:"pending"`
}

type Queue struct {
	kv     store.KV
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

func New(kv store.KV, opts ...Option) *Queue {
	q := &Queue{kv: kv, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds item or merges it into the queued item of the same session:
// answers are unioned by session question id with the new values winning.
func (q *Queue) Enqueue(ctx context.Context, item PendingSessionCompletion) error {
	_, err := q.EnqueueRevision(ctx, item)
	return err
}

// EnqueueRevision is Enqueue returning the revision the stored item ended up
// with, for use with RemoveIfRevision.
func (q *Queue) EnqueueRevision(ctx context.Context, item PendingSessionCompletion) (int64, error) {
	if item.UserID == "" || item.SessionID == "" {
		return 0, fmt.Errorf("queue: user and session id are required")
	}
	if item.Kind == "" {
		item.Kind = KindCompleteSession
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.read(ctx, item.UserID)
	if err != nil {
		return 0, err
	}

	var rev int64
	i := slices.IndexFunc(items, func(cur PendingSessionCompletion) bool {
		return cur.Kind == item.Kind && cur.SessionID == item.SessionID
	})
	if i < 0 {
		item.Answers = mergeAnswers(nil, item.Answers)
		item.Revision = 1
		rev = item.Revision
		items = append(items, item)
	} else {
		existing := items[i]
		existing.Answers = mergeAnswers(existing.Answers, item.Answers)
		existing.QueuedAt = item.QueuedAt
		if item.Language != "" {
			existing.Language = item.Language
		}
		existing.Revision++
		rev = existing.Revision
		items[i] = existing
	}
	if err := q.write(ctx, item.UserID, items); err != nil {
		return 0, err
	}
	return rev, nil
}

// Remove drops the user's queued item for sessionID, if any.
func (q *Queue) Remove(ctx context.Context, userID, sessionID string) error {
	return q.remove(ctx, userID, func(it PendingSessionCompletion) bool {
		return it.SessionID == sessionID
	})
}

// RemoveIfRevision drops the queued item for sessionID only while it is still
// at revision rev. An item merged with newer answers stays queued.
func (q *Queue) RemoveIfRevision(ctx context.Context, userID, sessionID string, rev int64) error {
	return q.remove(ctx, userID, func(it PendingSessionCompletion) bool {
		return it.SessionID == sessionID && it.Revision == rev
	})
}

func (q *Queue) remove(ctx context.Context, userID string, match func(PendingSessionCompletion) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.read(ctx, userID)
	if err != nil {
		return err
	}
	filtered := slices.DeleteFunc(slices.Clone(items), match)
	if len(filtered) == len(items) {
		return nil
	}
	return q.write(ctx, userID, filtered)
}

// List returns the user's queued items.
func (q *Queue) List(ctx context.Context, userID string) ([]PendingSessionCompletion, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read(ctx, userID)
}

// Users lists every user with a queue record.
func (q *Queue) Users(ctx context.Context) ([]string, error) {
	keys, err := q.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		if u := strings.TrimPrefix(k, keyPrefix); u != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// Flush runs process for every queued item of the user. Delivered items are
// dropped unless they were re-enqueued meanwhile; failed items stay queued.
// The queue lock is not held while process runs.
func (q *Queue) Flush(ctx context.Context, userID string, process Processor) (FlushResult, error) {
	snapshot, err := q.List(ctx, userID)
	if err != nil {
		return FlushResult{}, err
	}
	if len(snapshot) == 0 {
		return FlushResult{}, nil
	}

	delivered := make(map[string]int64)
	for _, item := range snapshot {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := process(ctx, item); err != nil {
			q.logger.Warn("queued completion not delivered",
				"user_id", userID, "session_id", item.SessionID, "error", err)
			continue
		}
		delivered[item.SessionID] = item.Revision
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.read(ctx, userID)
	if err != nil {
		return FlushResult{}, err
	}
	remaining := slices.DeleteFunc(slices.Clone(current), func(it PendingSessionCompletion) bool {
		rev, ok := delivered[it.SessionID]
		return ok && rev == it.Revision
	})
	if len(remaining) != len(current) {
		if err := q.write(ctx, userID, remaining); err != nil {
			return FlushResult{}, err
		}
	}
	return FlushResult{Synced: len(delivered), Pending: len(remaining)}, nil
}

// read must be called with q.mu held.
func (q *Queue) read(ctx context.Context, userID string) ([]PendingSessionCompletion, error) {
	env, ok, err := store.GetEnvelope[[]PendingSessionCompletion](ctx, q.kv, Key(userID), store.Version)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return env.Data, nil
}

// write must be called with q.mu held. An empty queue deletes the record.
func (q *Queue) write(ctx context.Context, userID string, items []PendingSessionCompletion) error {
	if len(items) == 0 {
		return q.kv.Delete(ctx, Key(userID))
	}
	env := store.Envelope[[]PendingSessionCompletion]{Version: store.Version, Data: items}
	if err := store.PutEnvelope(ctx, q.kv, Key(userID), env); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

func mergeAnswers(current, next []practicesession.Answer) []practicesession.Answer {
	merged := make(map[string]practicesession.Answer, len(current)+len(next))
	for _, a := range current {
		merged[a.SessionQuestionID] = a
	}
	for _, a := range next {
		merged[a.SessionQuestionID] = a
	}
	out := make([]practicesession.Answer, 0, len(merged))
	for _, a := range merged {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b practicesession.Answer) int {
		return cmp.Compare(a.SessionQuestionID, b.SessionQuestionID)
	})
	return out
}

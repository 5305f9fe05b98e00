package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

func BookmarksKey(userID string) string {
	return "store:theory:bookmarks:" + userID
}

// Bookmark is one saved question.
type Bookmark struct {
	QuestionID string    `json:"questionId"`
	SavedAt    time.Time `json:"savedAt"`
}

// BookmarkStore keeps a user's bookmarks newest first.
type BookmarkStore struct {
	kv  KV
	now func() time.Time

	mu sync.Mutex
}

func NewBookmarkStore(kv KV, now func() time.Time) *BookmarkStore {
	if now == nil {
		now = time.Now
	}
	return &BookmarkStore{kv: kv, now: now}
}

// List returns the bookmarks, newest first.
func (b *BookmarkStore) List(ctx context.Context, userID string) ([]Bookmark, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(ctx, userID)
}

// Toggle adds the question when absent and removes it otherwise. It returns
// the new bookmarked state.
func (b *BookmarkStore) Toggle(ctx context.Context, userID, questionID string) (bool, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return false, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.read(ctx, userID)
	if err != nil {
		return false, err
	}

	if i := slices.IndexFunc(entries, func(e Bookmark) bool { return e.QuestionID == questionID }); i >= 0 {
		entries = slices.Delete(entries, i, i+1)
		return false, b.write(ctx, userID, entries)
	}

	entries = slices.Insert(entries, 0, Bookmark{QuestionID: questionID, SavedAt: b.now().UTC()})
	return true, b.write(ctx, userID, entries)
}

func (b *BookmarkStore) read(ctx context.Context, userID string) ([]Bookmark, error) {
	raw, err := b.kv.Get(ctx, BookmarksKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var decoded []struct {
		QuestionID string     `json:"questionId"`
		SavedAt    *time.Time `json:"savedAt"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, nil
	}

	entries := make([]Bookmark, 0, len(decoded))
	for _, d := range decoded {
		qid := strings.TrimSpace(d.QuestionID)
		if qid == "" {
			continue
		}
		savedAt := b.now().UTC()
		if d.SavedAt != nil {
			savedAt = *d.SavedAt
		}
		entries = append(entries, Bookmark{QuestionID: qid, SavedAt: savedAt})
	}
	slices.SortStableFunc(entries, func(x, y Bookmark) int {
		return cmp.Compare(y.SavedAt.UnixMilli(), x.SavedAt.UnixMilli())
	})
	return entries, nil
}

func (b *BookmarkStore) write(ctx context.Context, userID string, entries []Bookmark) error {
	if entries == nil {
		entries = []Bookmark{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return b.kv.Set(ctx, BookmarksKey(userID), raw)
}

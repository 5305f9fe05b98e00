package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

// HistoryScope separates the recency lists of mock exams and marathons.
type HistoryScope string

const (
	HistoryMock     HistoryScope = "mock"
	HistoryMarathon HistoryScope = "marathon"
)

func HistoryKey(scope HistoryScope, lang questionbank.Language, userID string) string {
	return "store:theory:" + string(scope) + "-history:" + string(lang) + ":" + userID
}

// HistoryStore keeps the recently served question ids per user, language and
// scope as a bare JSON array.
type HistoryStore struct {
	kv KV
}

func NewHistoryStore(kv KV) *HistoryStore {
	return &HistoryStore{kv: kv}
}

// Read returns the recent ids, oldest first. An unreadable list is treated
// as empty; it only steers selection.
func (h *HistoryStore) Read(ctx context.Context, scope HistoryScope, lang questionbank.Language, userID string) ([]string, error) {
	raw, err := h.kv.Get(ctx, HistoryKey(scope, lang, userID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, nil
	}
	out := ids[:0]
	for _, qid := range ids {
		if qid = strings.TrimSpace(qid); qid != "" {
			out = append(out, qid)
		}
	}
	return out, nil
}

func (h *HistoryStore) Write(ctx context.Context, scope HistoryScope, lang questionbank.Language, userID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return h.kv.Set(ctx, HistoryKey(scope, lang, userID), raw)
}

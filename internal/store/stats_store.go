package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

// StatsKey is the persistent key of a user's stats map.
func StatsKey(userID string) string {
	return "store:theory:stats:" + userID
}

// StatsStore persists each user's question stats as one record. Reads are
// served from a memory mirror after the first load; callers always receive
// their own copy.
type StatsStore struct {
	kv KV

	mu    sync.Mutex
	cache map[string]map[string]questionbank.QuestionStats
}

func NewStatsStore(kv KV) *StatsStore {
	return &StatsStore{
		kv:    kv,
		cache: make(map[string]map[string]questionbank.QuestionStats),
	}
}

// Read returns the user's stats keyed by question id. A user without stats
// gets an empty map.
func (s *StatsStore) Read(ctx context.Context, userID string) (map[string]questionbank.QuestionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[userID]; ok {
		return cloneStats(cached), nil
	}

	env, ok, err := GetEnvelope[map[string]questionbank.QuestionStats](ctx, s.kv, StatsKey(userID), Version)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	stats := make(map[string]questionbank.QuestionStats)
	if ok {
		for qid, st := range env.Data {
			st = st.Normalize()
			if st.QuestionID == "" {
				continue
			}
			stats[qid] = st
		}
	}
	s.cache[userID] = stats
	return cloneStats(stats), nil
}

// Write replaces the user's whole stats map.
func (s *StatsStore) Write(ctx context.Context, userID string, stats map[string]questionbank.QuestionStats) error {
	next := make(map[string]questionbank.QuestionStats, len(stats))
	for qid, st := range stats {
		if qid == "" {
			continue
		}
		next[qid] = cloneStat(st.Normalize())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := PutEnvelope(ctx, s.kv, StatsKey(userID), Envelope[map[string]questionbank.QuestionStats]{Version: Version, Data: next}); err != nil {
		delete(s.cache, userID)
		return fmt.Errorf("write stats: %w", err)
	}
	s.cache[userID] = next
	return nil
}

func cloneStats(in map[string]questionbank.QuestionStats) map[string]questionbank.QuestionStats {
	out := make(map[string]questionbank.QuestionStats, len(in))
	for k, v := range in {
		out[k] = cloneStat(v)
	}
	return out
}

func cloneStat(st questionbank.QuestionStats) questionbank.QuestionStats {
	if st.LastIsCorrect != nil {
		v := *st.LastIsCorrect
		st.LastIsCorrect = &v
	}
	if st.LastAnsweredAt != nil {
		v := *st.LastAnsweredAt
		st.LastAnsweredAt = &v
	}
	return st
}

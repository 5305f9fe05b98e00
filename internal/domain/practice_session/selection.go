package practicesession

import (
	"math"
	"slices"
	"strings"
)

// Rand is the randomness the selection helpers need. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Shuffle returns a shuffled copy of items using an in-place Fisher-Yates
// pass from the end backward.
func Shuffle[T any](rng Rand, items []T) []T {
	out := slices.Clone(items)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DedupeKeepLatest drops blank and repeated ids. When an id repeats, its last
// occurrence decides its position.
func DedupeKeepLatest(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	reversed := make([]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		qid := strings.TrimSpace(ids[i])
		if qid == "" {
			continue
		}
		if _, ok := seen[qid]; ok {
			continue
		}
		seen[qid] = struct{}{}
		reversed = append(reversed, qid)
	}
	slices.Reverse(reversed)
	return reversed
}

// SelectAvoidingRecent picks up to limit ids from all, preferring ids not in
// recent. When the fresh pool is too small the remainder is backfilled from
// the rest of the pool, so the result only falls short of limit when the pool
// itself is smaller.
func SelectAvoidingRecent(rng Rand, all []string, limit int, recent []string) []string {
	unique := DedupeKeepLatest(all)
	if len(unique) == 0 {
		return nil
	}
	limit = max(1, min(limit, len(unique)))

	recentSet := make(map[string]struct{}, len(recent))
	for _, qid := range recent {
		recentSet[qid] = struct{}{}
	}
	fresh := make([]string, 0, len(unique))
	for _, qid := range unique {
		if _, ok := recentSet[qid]; !ok {
			fresh = append(fresh, qid)
		}
	}

	selected := Shuffle(rng, fresh)
	if len(selected) >= limit {
		return selected[:limit]
	}

	chosen := make(map[string]struct{}, limit)
	for _, qid := range selected {
		chosen[qid] = struct{}{}
	}
	var fallback []string
	for _, qid := range unique {
		if _, ok := chosen[qid]; !ok {
			fallback = append(fallback, qid)
		}
	}
	fallback = Shuffle(rng, fallback)
	return append(selected, fallback[:limit-len(selected)]...)
}

// HistoryCap is the number of recently served ids remembered per user:
// max(limit*12, 75% of the pool).
func HistoryCap(poolSize, limit int) int {
	return max(limit*12, int(math.Floor(float64(poolSize)*0.75)))
}

// NextHistory appends selected to recent, dedupes keeping the latest
// occurrence and keeps only the newest limit entries.
func NextHistory(recent, selected []string, limit int) []string {
	merged := DedupeKeepLatest(append(slices.Clone(recent), selected...))
	if limit >= 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

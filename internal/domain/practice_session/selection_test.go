package practicesession_test

import (
	"math/rand"
	"slices"
	"testing"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
)

func TestShuffle_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := []string{"a", "b", "b", "c", "d", "e", "f"}

	for i := 0; i < 50; i++ {
		got := practicesession.Shuffle(rng, pool)

		sortedGot := slices.Clone(got)
		slices.Sort(sortedGot)
		sortedPool := slices.Clone(pool)
		slices.Sort(sortedPool)
		if !slices.Equal(sortedGot, sortedPool) {
			t.Fatalf("shuffle changed the multiset: %v", got)
		}
	}
	if !slices.Equal(pool, []string{"a", "b", "b", "c", "d", "e", "f"}) {
		t.Error("expected input slice to stay untouched")
	}
}

func TestShuffle_ChangesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pool := makeIDs(20)

	for i := 0; i < 10; i++ {
		if !slices.Equal(practicesession.Shuffle(rng, pool), pool) {
			return
		}
	}
	t.Error("expected questions to be randomized across shuffles")
}

func TestDedupeKeepLatest(t *testing.T) {
	got := practicesession.DedupeKeepLatest([]string{"a", "b", " ", "a", "c", "b"})
	if want := []string{"a", "c", "b"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSelectAvoidingRecent_PrefersFresh(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	all := makeIDs(30)
	recent := all[:10]

	got := practicesession.SelectAvoidingRecent(rng, all, 20, recent)

	if len(got) != 20 {
		t.Fatalf("expected 20 questions, got %d", len(got))
	}
	for _, qid := range got {
		if slices.Contains(recent, qid) {
			t.Errorf("expected recent question %s to be avoided", qid)
		}
	}
}

func TestSelectAvoidingRecent_BackfillsWhenHistoryCoversPool(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	all := makeIDs(25)

	got := practicesession.SelectAvoidingRecent(rng, all, 20, all)

	if len(got) != 20 {
		t.Fatalf("expected backfill to 20 questions, got %d", len(got))
	}
	if len(practicesession.DedupeKeepLatest(got)) != 20 {
		t.Error("expected no duplicates after backfill")
	}
}

func TestSelectAvoidingRecent_PartialFreshPool(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	all := makeIDs(25)
	recent := all[:22]

	got := practicesession.SelectAvoidingRecent(rng, all, 20, recent)

	if len(got) != 20 {
		t.Fatalf("expected 20 questions, got %d", len(got))
	}
	for _, fresh := range all[22:] {
		if !slices.Contains(got[:3], fresh) {
			t.Errorf("expected fresh question %s to be selected first", fresh)
		}
	}
}

func TestSelectAvoidingRecent_SmallPool(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	got := practicesession.SelectAvoidingRecent(rng, makeIDs(5), 20, nil)
	if len(got) != 5 {
		t.Errorf("expected the whole pool of 5, got %d", len(got))
	}
	if got := practicesession.SelectAvoidingRecent(rng, nil, 20, nil); got != nil {
		t.Errorf("expected nil for empty pool, got %v", got)
	}
}

func TestHistoryCap(t *testing.T) {
	if got := practicesession.HistoryCap(1000, 20); got != 750 {
		t.Errorf("expected 750, got %d", got)
	}
	if got := practicesession.HistoryCap(100, 20); got != 240 {
		t.Errorf("expected 240, got %d", got)
	}
}

func TestNextHistory(t *testing.T) {
	got := practicesession.NextHistory([]string{"a", "b", "c"}, []string{"b", "d"}, 3)
	if want := []string{"c", "b", "d"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

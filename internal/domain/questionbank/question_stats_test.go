package questionbank_test

import (
	"slices"
	"testing"
	"time"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

func boolPtr(v bool) *bool { return &v }

func TestComputeTopicProgress_NoStats(t *testing.T) {
	bank := buildBank(rawTopic("5", 1, 11))
	topic, _ := bank.Topic("5")

	p := questionbank.ComputeTopicProgress(topic, nil)

	if p.SeenQuestions != 0 || p.ProgressPercent != 0 || p.Completed {
		t.Errorf("expected untouched topic, got %+v", p)
	}
	if p.TotalQuestions != 11 {
		t.Errorf("expected 11 questions, got %d", p.TotalQuestions)
	}
}

func TestComputeTopicProgress_Counts(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 11))
	topic, _ := bank.Topic("1")
	stats := map[string]questionbank.QuestionStats{
		"1":   {QuestionID: "1", SeenCount: 2, CorrectCount: 1, IncorrectCount: 1, LastIsCorrect: boolPtr(true)},
		"2":   {QuestionID: "2", SeenCount: 1, IncorrectCount: 1, LastIsCorrect: boolPtr(false)},
		"3":   {QuestionID: "3", SeenCount: 1},
		"999": {QuestionID: "999", SeenCount: 5},
	}

	p := questionbank.ComputeTopicProgress(topic, stats)

	if p.SeenQuestions != 3 {
		t.Errorf("expected 3 seen, got %d", p.SeenQuestions)
	}
	if p.AnsweredQuestions != 2 {
		t.Errorf("expected 2 answered, got %d", p.AnsweredQuestions)
	}
	if p.CorrectCount != 1 || p.IncorrectCount != 1 {
		t.Errorf("expected 1/1 last outcomes, got %d/%d", p.CorrectCount, p.IncorrectCount)
	}
	if p.ProgressPercent != 27 {
		t.Errorf("expected 27%%, got %d", p.ProgressPercent)
	}
}

func TestComputeOverview(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 11), rawTopic("2", 100, 11))
	stats := map[string]questionbank.QuestionStats{}
	for _, qid := range bank.AllQuestionIDs()[:11] {
		stats[qid] = questionbank.QuestionStats{QuestionID: qid, SeenCount: 1}
	}

	o := questionbank.ComputeOverview(bank.Topics(), stats)

	if o.Summary.TotalTopics != 2 || o.Summary.TotalQuestions != 22 {
		t.Errorf("unexpected summary %+v", o.Summary)
	}
	if o.Summary.SeenQuestions != 11 || o.Summary.NotSeenQuestions != 11 || o.Summary.ProgressPercent != 50 {
		t.Errorf("unexpected progress summary %+v", o.Summary)
	}
	if !o.Topics[0].Completed || o.Topics[1].Completed {
		t.Errorf("expected only the first topic completed")
	}
}

func TestStatsRecord(t *testing.T) {
	var s questionbank.QuestionStats
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s.Record(false, at)
	s.Record(true, at.Add(time.Minute))

	if s.SeenCount != 2 || s.CorrectCount != 1 || s.IncorrectCount != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
	if s.LastIsCorrect == nil || !*s.LastIsCorrect {
		t.Error("expected last answer correct")
	}
	if !s.IsMistake() {
		t.Error("expected question with an incorrect answer to count as a mistake")
	}
	if s.LastWrong() {
		t.Error("expected LastWrong to be false")
	}
}

func TestWrongQuestionIDsAndPacks(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 30))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stats := map[string]questionbank.QuestionStats{}
	for i := 1; i <= 25; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		qid := bank.AllQuestionIDs()[i-1]
		stats[qid] = questionbank.QuestionStats{QuestionID: qid, SeenCount: 1, LastIsCorrect: boolPtr(false), LastAnsweredAt: &at}
	}
	stats["26"] = questionbank.QuestionStats{QuestionID: "26", SeenCount: 1, LastIsCorrect: boolPtr(true)}
	stats["gone"] = questionbank.QuestionStats{QuestionID: "gone", LastIsCorrect: boolPtr(false)}

	ids := questionbank.WrongQuestionIDs(bank, stats)
	if len(ids) != 25 {
		t.Fatalf("expected 25 wrong questions, got %d", len(ids))
	}
	if ids[0] != "25" || ids[24] != "1" {
		t.Errorf("expected newest first, got %s..%s", ids[0], ids[24])
	}

	packs := questionbank.SplitIntoPacks(ids, questionbank.MistakePackSize)
	if len(packs) != 2 {
		t.Fatalf("expected 2 packs, got %d", len(packs))
	}
	if packs[0].ID != "1" || packs[0].TotalQuestions != 20 || packs[1].ID != "2" || packs[1].TotalQuestions != 5 {
		t.Errorf("unexpected packs %+v", packs)
	}
	if !slices.Equal(packs[1].QuestionIDs, ids[20:]) {
		t.Errorf("unexpected second pack %v", packs[1].QuestionIDs)
	}
}

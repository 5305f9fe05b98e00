package questionbank_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/remaimber-it/drivetheory/internal/domain/questionbank"
)

// rawTopic creates n valid questions for a topic, ids starting at firstID.
func rawTopic(topic string, firstID, n int) []questionbank.RawQuestion {
	out := make([]questionbank.RawQuestion, n)
	for i := range out {
		qid := strconv.Itoa(firstID + i)
		out[i] = questionbank.RawQuestion{
			ID:            questionbank.FlexString(qid),
			Question:      "Question " + qid,
			Answers:       []string{"first", "second", "third"},
			CorrectAnswer: "2",
			Topic:         questionbank.FlexString(topic),
		}
	}
	return out
}

func buildBank(questions ...[]questionbank.RawQuestion) *questionbank.Bank {
	var all []questionbank.RawQuestion
	for _, q := range questions {
		all = append(all, q...)
	}
	return questionbank.Build(questionbank.LangUzLatn, questionbank.Dataset{Questions: all}, questionbank.BuildOptions{})
}

func topicIDs(b *questionbank.Bank) []string {
	var ids []string
	for _, t := range b.Topics() {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestBuild_DropsInvalidRecords(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 11), []questionbank.RawQuestion{
		{ID: "100", Question: "  ", Answers: []string{"a"}, Topic: "1"},
		{ID: "101", Question: "No answers", Answers: []string{"", "  "}, Topic: "1"},
		{ID: "", Question: "No id", Answers: []string{"a"}, Topic: "1"},
	})

	if bank.Has("100") || bank.Has("101") {
		t.Error("expected invalid records to be excluded")
	}
	if got := len(bank.AllQuestionIDs()); got != 11 {
		t.Errorf("expected 11 questions, got %d", got)
	}
}

func TestBuild_TopicFallbacks(t *testing.T) {
	records := rawTopic("", 1, 11)
	for i := range records {
		records[i].Topic = ""
	}
	byCategory := rawTopic("", 20, 11)
	for i := range byCategory {
		byCategory[i].Topic = ""
		byCategory[i].QuestionCategory = "7"
	}

	bank := buildBank(records, byCategory)

	if ids := topicIDs(bank); !slices.Equal(ids, []string{"7", "general"}) {
		t.Fatalf("expected topics [7 general], got %v", ids)
	}
}

func TestBuild_MergesSmallTopicIntoPrecedingLargeTopic(t *testing.T) {
	bank := buildBank(
		rawTopic("1", 1, 12),
		rawTopic("2", 100, 3),
		rawTopic("3", 200, 15),
	)

	if ids := topicIDs(bank); !slices.Equal(ids, []string{"1", "3"}) {
		t.Fatalf("expected topics [1 3], got %v", ids)
	}
	topic, _ := bank.Topic("1")
	if len(topic.QuestionIDs) != 15 {
		t.Errorf("expected merged topic to hold 15 questions, got %d", len(topic.QuestionIDs))
	}
	q, ok := bank.Question("101")
	if !ok || q.TopicID != "1" {
		t.Errorf("expected question 101 to belong to topic 1, got %+v", q)
	}
}

func TestBuild_MergesLeadingSmallTopicIntoFollowingTopic(t *testing.T) {
	bank := buildBank(
		rawTopic("1", 1, 2),
		rawTopic("2", 100, 10),
		rawTopic("3", 200, 11),
	)

	if ids := topicIDs(bank); !slices.Equal(ids, []string{"3"}) {
		t.Fatalf("expected only topic 3, got %v", ids)
	}
	topic, _ := bank.Topic("3")
	if len(topic.QuestionIDs) != 23 {
		t.Errorf("expected 23 questions, got %d", len(topic.QuestionIDs))
	}
}

func TestBuild_AllSmallTopicsStay(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 3), rawTopic("2", 10, 3))

	if ids := topicIDs(bank); !slices.Equal(ids, []string{"1", "2"}) {
		t.Errorf("expected small topics to stay, got %v", ids)
	}
}

func TestBuild_TopicOrderSlugAndTitle(t *testing.T) {
	bank := buildBank(rawTopic("10", 1, 11), rawTopic("2", 100, 11), rawTopic("b", 200, 11), rawTopic("a", 300, 11))

	topics := bank.Topics()
	if ids := topicIDs(bank); !slices.Equal(ids, []string{"2", "10", "a", "b"}) {
		t.Fatalf("expected numeric order with non-numeric last, got %v", ids)
	}
	for i, topic := range topics {
		if topic.Order != i+1 {
			t.Errorf("expected order %d, got %d", i+1, topic.Order)
		}
	}
	if topics[1].Slug != "section-10" {
		t.Errorf("expected slug section-10, got %q", topics[1].Slug)
	}
	if topics[1].Title != "Bo'lim 10" {
		t.Errorf("expected generated title, got %q", topics[1].Title)
	}
	if _, ok := bank.TopicBySlug("section-a"); !ok {
		t.Error("expected lookup by slug")
	}
}

func TestTopicSlug(t *testing.T) {
	cases := map[string]string{
		"3":         "section-3",
		"Road Rule": "section-road-rule",
		"a__b..C":   "section-a-b-c",
	}
	for in, want := range cases {
		if got := questionbank.TopicSlug(in); got != want {
			t.Errorf("TopicSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQuestion_MaterializesOptions(t *testing.T) {
	bank := questionbank.Build(questionbank.LangRu, questionbank.Dataset{Questions: []questionbank.RawQuestion{{
		ID:             "42",
		Question:       " Which sign? ",
		Answers:        []string{"Stop", "", "Yield", "Go"},
		CorrectAnswer:  "3",
		Topic:          "1",
		ImageQ:         "img/42.png",
		CorrectAnsAlls: "Because.",
	}}}, questionbank.BuildOptions{ResolveImage: questionbank.URLImageResolver("https://cdn.example.com/")})

	q, ok := bank.Question("42")
	if !ok {
		t.Fatal("expected question 42")
	}
	if q.Prompt != "Which sign?" {
		t.Errorf("expected trimmed prompt, got %q", q.Prompt)
	}
	if len(q.Options) != 3 {
		t.Fatalf("expected 3 non-empty options, got %d", len(q.Options))
	}
	want := []questionbank.Option{
		{ID: "42:1", Label: "A", Text: "Stop", Order: 1},
		{ID: "42:2", Label: "B", Text: "Yield", Order: 2},
		{ID: "42:3", Label: "C", Text: "Go", IsCorrect: true, Order: 3},
	}
	if !slices.Equal(q.Options, want) {
		t.Errorf("unexpected options %+v", q.Options)
	}
	if q.ImageURL == nil || *q.ImageURL != "https://cdn.example.com/img/42.png" {
		t.Errorf("unexpected image url %v", q.ImageURL)
	}
	if q.Explanation == nil || *q.Explanation != "Because." {
		t.Errorf("unexpected explanation %v", q.Explanation)
	}

	again, _ := bank.Question("42")
	if again != q {
		t.Error("expected materialized question to be memoized")
	}
}

func TestQuestion_Unknown(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 11))
	if _, ok := bank.Question("999"); ok {
		t.Error("expected unknown question to be absent")
	}
}

func TestSortedOptions_TieBreaksByLabel(t *testing.T) {
	q := &questionbank.Question{Options: []questionbank.Option{
		{ID: "c", Label: "C", Order: 2},
		{ID: "b", Label: "B", Order: 1},
		{ID: "a", Label: "A", Order: 1},
	}}

	var got []string
	for _, o := range q.SortedOptions() {
		got = append(got, o.ID)
	}
	if !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected option order %v", got)
	}
}

func TestQuestionsByTopic(t *testing.T) {
	bank := buildBank(rawTopic("1", 1, 11))

	questions := bank.QuestionsByTopic("1")
	if len(questions) != 11 {
		t.Fatalf("expected 11 questions, got %d", len(questions))
	}
	if questions[0].ID != "1" || questions[10].ID != "11" {
		t.Errorf("expected numeric question order, got %s..%s", questions[0].ID, questions[10].ID)
	}
	if got := bank.QuestionsByTopic("missing"); got != nil {
		t.Errorf("expected nil for unknown topic, got %d", len(got))
	}
}

func TestParseLanguage(t *testing.T) {
	cases := []struct {
		in   string
		want questionbank.Language
	}{
		{"uz-Latn", questionbank.LangUzLatn},
		{"UZ-CYRL", questionbank.LangUzCyrl},
		{"ru-RU", questionbank.LangRu},
		{"uz", questionbank.LangUzLatn},
		{"en", questionbank.LangRu},
		{"", questionbank.LangRu},
	}
	for _, c := range cases {
		if got := questionbank.ParseLanguage(c.in, questionbank.LangRu); got != c.want {
			t.Errorf("ParseLanguage(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if got := questionbank.ParseLanguage("xx", ""); got != questionbank.DefaultLanguage {
		t.Errorf("expected default language, got %q", got)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	langDir := filepath.Join(dir, "ru")
	if err := os.MkdirAll(langDir, 0o755); err != nil {
		t.Fatal(err)
	}
	questions := `{"default": [{"id": 7, "question": "Q?", "answers": ["x", "y"], "correct_answer": 1, "question_category": 3}]}`
	if err := os.WriteFile(filepath.Join(langDir, "questions.json"), []byte(questions), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(langDir, "topics.json"), []byte(`{"3": "Signs"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := questionbank.NewRegistry(questionbank.FileSource{Dir: dir}, questionbank.BuildOptions{})
	bank, err := registry.Bank(context.Background(), questionbank.LangRu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	topic, ok := bank.Topic("3")
	if !ok {
		t.Fatal("expected topic 3")
	}
	if topic.Title != "Signs" {
		t.Errorf("expected overridden title, got %q", topic.Title)
	}
	q, ok := bank.Question("7")
	if !ok || !q.Options[0].IsCorrect {
		t.Errorf("expected numeric fields to decode, got %+v", q)
	}

	again, _ := registry.Bank(context.Background(), questionbank.LangRu)
	if again != bank {
		t.Error("expected registry to reuse the built bank")
	}
}

func TestFileSource_MissingLanguage(t *testing.T) {
	registry := questionbank.NewRegistry(questionbank.FileSource{Dir: t.TempDir()}, questionbank.BuildOptions{})
	if _, err := registry.Bank(context.Background(), questionbank.LangUzCyrl); err == nil {
		t.Error("expected error for missing question file")
	}
}

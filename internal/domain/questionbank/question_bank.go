package questionbank

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// SmallTopicThreshold is the question count at or below which a topic is
// folded into a neighbouring topic when the bank is built.
const SmallTopicThreshold = 10

const generalTopicID = "general"

// Option is one answer choice of a Question.
type Option struct {
	ID        string `json:"id"` // "{questionId}:{ordinal}"
	Label     string `json:"label"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Order     int    `json:"order"`
}

// Question is immutable once materialized. Callers must not modify the
// Options slice of a shared *Question.
type Question struct {
	ID          string   `json:"id"`
	TopicID     string   `json:"topicId"`
	Prompt      string   `json:"prompt"`
	ImageURL    *string  `json:"imageUrl"`
	Explanation *string  `json:"explanation"`
	Options     []Option `json:"options"`
}

// Option returns the option with the given id.
func (q *Question) Option(optionID string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == optionID {
			return o, true
		}
	}
	return Option{}, false
}

// SortedOptions returns a copy of the options ordered by Order, then Label.
func (q *Question) SortedOptions() []Option {
	out := slices.Clone(q.Options)
	slices.SortStableFunc(out, func(a, b Option) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.Label, b.Label))
	})
	return out
}

// Topic groups questions after small-topic merging.
type Topic struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Order       int      `json:"order"`
	ImageKey    *string  `json:"imageKey"`
	QuestionIDs []string `json:"questionIds"`
}

// ImageResolver turns a raw image key into a URI. An empty result means no image.
type ImageResolver func(key string) string

// BuildOptions tunes Build.
type BuildOptions struct {
	ResolveImage ImageResolver
}

// Bank is the indexed question bank of one language. Topics and indexes are
// fixed at build time; Question values are materialized lazily and memoized.
type Bank struct {
	Language Language

	topics        []Topic
	topicByID     map[string]int
	topicBySlug   map[string]int
	raw           map[string]RawQuestion
	questionTopic map[string]string
	resolveImage  ImageResolver

	mu             sync.Mutex
	questions      map[string]*Question
	topicQuestions map[string][]*Question
}

type draftQuestion struct {
	id      string
	topicID string
	raw     RawQuestion
}

// Build parses and indexes a dataset. Records without an id, a non-empty
// prompt or at least one non-empty answer are dropped silently.
func Build(lang Language, ds Dataset, opts BuildOptions) *Bank {
	var drafts []draftQuestion
	counts := make(map[string]int)

	for _, item := range ds.Questions {
		qid := strings.TrimSpace(string(item.ID))
		if qid == "" {
			continue
		}
		if strings.TrimSpace(item.Question) == "" {
			continue
		}
		if !hasValidOptions(item) {
			continue
		}
		topicID := rawTopicID(item)
		drafts = append(drafts, draftQuestion{id: qid, topicID: topicID, raw: item})
		counts[topicID]++
	}

	mergeMap := smallTopicMergeMap(counts)

	b := &Bank{
		Language:       lang,
		topicByID:      make(map[string]int),
		topicBySlug:    make(map[string]int),
		raw:            make(map[string]RawQuestion, len(drafts)),
		questionTopic:  make(map[string]string, len(drafts)),
		resolveImage:   opts.ResolveImage,
		questions:      make(map[string]*Question),
		topicQuestions: make(map[string][]*Question),
	}

	idsByTopic := make(map[string][]string)
	for _, d := range drafts {
		topicID := d.topicID
		if target, ok := mergeMap[topicID]; ok {
			topicID = target
		}
		if _, dup := b.raw[d.id]; !dup {
			idsByTopic[topicID] = append(idsByTopic[topicID], d.id)
		}
		b.raw[d.id] = d.raw
		b.questionTopic[d.id] = topicID
	}

	topicIDs := make([]string, 0, len(idsByTopic))
	for topicID, ids := range idsByTopic {
		slices.SortFunc(ids, compareNumericID)
		topicIDs = append(topicIDs, topicID)
	}
	slices.SortFunc(topicIDs, compareNumericID)

	prefix := topicTitlePrefix[lang]
	if prefix == "" {
		prefix = topicTitlePrefix[DefaultLanguage]
	}
	subtitle := topicSubtitle[lang]
	if subtitle == "" {
		subtitle = topicSubtitle[DefaultLanguage]
	}

	b.topics = make([]Topic, len(topicIDs))
	for i, topicID := range topicIDs {
		title := strings.TrimSpace(ds.TopicTitles[topicID])
		if title == "" {
			title = prefix + " " + topicID
		}
		imageKey := topicID
		b.topics[i] = Topic{
			ID:          topicID,
			Slug:        TopicSlug(topicID),
			Title:       title,
			Subtitle:    subtitle,
			Order:       i + 1,
			ImageKey:    &imageKey,
			QuestionIDs: slices.Clone(idsByTopic[topicID]),
		}
		b.topicByID[topicID] = i
		b.topicBySlug[b.topics[i].Slug] = i
	}
	return b
}

var nonSlugChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// TopicSlug derives the public slug of a topic id.
func TopicSlug(topicID string) string {
	return "section-" + strings.ToLower(nonSlugChars.ReplaceAllString(topicID, "-"))
}

// Topics returns the topics in display order.
func (b *Bank) Topics() []Topic {
	out := make([]Topic, len(b.topics))
	for i, t := range b.topics {
		out[i] = t
		out[i].QuestionIDs = slices.Clone(t.QuestionIDs)
	}
	return out
}

func (b *Bank) Topic(topicID string) (Topic, bool) {
	i, ok := b.topicByID[topicID]
	if !ok {
		return Topic{}, false
	}
	t := b.topics[i]
	t.QuestionIDs = slices.Clone(t.QuestionIDs)
	return t, true
}

func (b *Bank) TopicBySlug(slug string) (Topic, bool) {
	i, ok := b.topicBySlug[slug]
	if !ok {
		return Topic{}, false
	}
	return b.Topic(b.topics[i].ID)
}

// Has reports whether questionID belongs to some topic of the bank.
func (b *Bank) Has(questionID string) bool {
	_, ok := b.questionTopic[questionID]
	return ok
}

// AllQuestionIDs lists every question id topic by topic.
func (b *Bank) AllQuestionIDs() []string {
	var out []string
	for _, t := range b.topics {
		out = append(out, t.QuestionIDs...)
	}
	return out
}

// Question returns the materialized question, or false when it is unknown or
// lacks usable options.
func (b *Bank) Question(questionID string) (*Question, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.materialize(questionID)
	return q, q != nil
}

// QuestionsByTopic materializes all questions of a topic in topic order.
func (b *Bank) QuestionsByTopic(topicID string) []*Question {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cached, ok := b.topicQuestions[topicID]; ok {
		return slices.Clone(cached)
	}
	i, ok := b.topicByID[topicID]
	if !ok {
		return nil
	}
	var out []*Question
	for _, qid := range b.topics[i].QuestionIDs {
		if q := b.materialize(qid); q != nil {
			out = append(out, q)
		}
	}
	b.topicQuestions[topicID] = out
	return slices.Clone(out)
}

// materialize must be called with b.mu held.
func (b *Bank) materialize(questionID string) *Question {
	if q, ok := b.questions[questionID]; ok {
		return q
	}
	raw, ok := b.raw[questionID]
	if !ok {
		return nil
	}
	prompt := strings.TrimSpace(raw.Question)
	if prompt == "" {
		return nil
	}

	correct := correctIndex(raw.CorrectAnswer)
	var options []Option
	for _, text := range raw.Answers {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		idx := len(options)
		options = append(options, Option{
			ID:        questionID + ":" + strconv.Itoa(idx+1),
			Label:     optionLabel(idx),
			Text:      text,
			IsCorrect: idx == correct,
			Order:     idx + 1,
		})
	}
	if len(options) == 0 {
		return nil
	}

	topicID, ok := b.questionTopic[questionID]
	if !ok {
		topicID = rawTopicID(raw)
	}

	q := &Question{
		ID:      questionID,
		TopicID: topicID,
		Prompt:  prompt,
		Options: options,
	}
	if key := strings.TrimSpace(raw.ImageQ); key != "" && b.resolveImage != nil {
		if uri := b.resolveImage(key); uri != "" {
			q.ImageURL = &uri
		}
	}
	if explanation := strings.TrimSpace(raw.CorrectAnsAlls); explanation != "" {
		q.Explanation = &explanation
	}

	b.questions[questionID] = q
	return q
}

func hasValidOptions(raw RawQuestion) bool {
	for _, a := range raw.Answers {
		if strings.TrimSpace(a) != "" {
			return true
		}
	}
	return false
}

func rawTopicID(raw RawQuestion) string {
	if t := strings.TrimSpace(string(raw.Topic)); t != "" {
		return t
	}
	if c := strings.TrimSpace(string(raw.QuestionCategory)); c != "" {
		return c
	}
	return generalTopicID
}

// numericOrder parses ids like "12" for ordering; non-numeric ids sort last.
func numericOrder(v string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return math.MaxInt
	}
	return int(math.Floor(f))
}

func compareNumericID(a, b string) int {
	return cmp.Or(cmp.Compare(numericOrder(a), numericOrder(b)), strings.Compare(a, b))
}

// correctIndex converts the 1-based correct answer to a 0-based index, or -1.
func correctIndex(v FlexString) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return -1
	}
	return max(-1, int(math.Floor(f))-1)
}

func optionLabel(index int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if index >= 0 && index < len(letters) {
		return letters[index : index+1]
	}
	return strconv.Itoa(index + 1)
}

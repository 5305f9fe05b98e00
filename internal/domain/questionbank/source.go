package questionbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FlexString accepts both JSON strings and JSON numbers. The bundled question
// files mix the two for ids, topics and the correct answer index.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Unusable values are treated as missing; the record is then
		// filtered out (or falls back to "general") during the build.
		*f = ""
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// RawQuestion is one record of a per-language question file.
type RawQuestion struct {
	ID               FlexString `json:"id"`
	Question         string     `json:"question"`
	ImageQ           string     `json:"image_q,omitempty"`
	CorrectAnsAlls   string     `json:"correct_ans_alls,omitempty"`
	Answers          []string   `json:"answers"`
	CorrectAnswer    FlexString `json:"correct_answer"` // 1-based
	QuestionCategory FlexString `json:"question_category,omitempty"`
	Topic            FlexString `json:"topic,omitempty"`
}

// Dataset is everything a Source provides for one language.
type Dataset struct {
	Questions []RawQuestion
	// TopicTitles optionally overrides the generated "{prefix} {id}" titles.
	TopicTitles map[string]string
}

// Source is the read-only static question data.
type Source interface {
	Load(ctx context.Context, lang Language) (Dataset, error)
}

// FileSource reads {Dir}/{lang}/questions.json and the optional
// {Dir}/{lang}/topics.json ({"topicId": "title"}).
type FileSource struct {
	Dir string
}

func (s FileSource) Load(ctx context.Context, lang Language) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}

	dir := filepath.Join(s.Dir, string(lang))
	raw, err := os.ReadFile(filepath.Join(dir, "questions.json"))
	if err != nil {
		return Dataset{}, fmt.Errorf("questionbank: read %s questions: %w", lang, err)
	}
	questions, err := DecodeQuestions(raw)
	if err != nil {
		return Dataset{}, fmt.Errorf("questionbank: decode %s questions: %w", lang, err)
	}

	ds := Dataset{Questions: questions}

	titles, err := os.ReadFile(filepath.Join(dir, "topics.json"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Dataset{}, fmt.Errorf("questionbank: read %s topics: %w", lang, err)
	default:
		if err := json.Unmarshal(titles, &ds.TopicTitles); err != nil {
			return Dataset{}, fmt.Errorf("questionbank: decode %s topics: %w", lang, err)
		}
	}
	return ds, nil
}

// DecodeQuestions accepts either a bare JSON array or a module-style
// {"default": [...]} wrapper.
func DecodeQuestions(raw []byte) ([]RawQuestion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Default []RawQuestion `json:"default"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Default, nil
	}
	var questions []RawQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// StaticSource serves in-memory datasets, mostly for tests and embedding.
type StaticSource map[Language]Dataset

func (s StaticSource) Load(_ context.Context, lang Language) (Dataset, error) {
	return s[lang], nil
}

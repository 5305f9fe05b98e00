package practicesession

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode is the kind of run a session represents.
type Mode string

const (
	ModeTopicPractice    Mode = "topic_practice"
	ModeMockExam         Mode = "mock_exam"
	ModeMarathon         Mode = "marathon"
	ModeMistakesPractice Mode = "mistakes_practice"
)

var modes = []Mode{ModeTopicPractice, ModeMockExam, ModeMarathon, ModeMistakesPractice}

func (m Mode) Valid() bool {
	for _, v := range modes {
		if v == m {
			return true
		}
	}
	return false
}

// ParseMode accepts the wire names of the four modes. An empty string is
// topic practice.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModeTopicPractice, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown session mode %q", s)
	}
	return m, nil
}

// TestSettings holds the per-run options chosen before a session starts.
// All three fields are always present; DefaultSettings supplies the values
// for anything missing.
type TestSettings struct {
	ShowMistakesOnly bool `json:"showMistakesOnly"`
	ShuffleQuestions bool `json:"shuffleQuestions"`
	AutoAdvance      bool `json:"autoAdvance"`
}

// DefaultSettings returns the settings used when the user never changed them.
func DefaultSettings() TestSettings {
	return TestSettings{
		ShowMistakesOnly: false,
		ShuffleQuestions: true,
		AutoAdvance:      false,
	}
}

// ForFullBank returns the settings stored on mock exam, marathon and mistake
// sessions: only AutoAdvance is taken from the caller.
func (s TestSettings) ForFullBank() TestSettings {
	return TestSettings{
		ShowMistakesOnly: false,
		ShuffleQuestions: true,
		AutoAdvance:      s.AutoAdvance,
	}
}

// UnmarshalJSON fills absent fields from DefaultSettings.
func (s *TestSettings) UnmarshalJSON(b []byte) error {
	var raw struct {
		ShowMistakesOnly *bool `json:"showMistakesOnly"`
		ShuffleQuestions *bool `json:"shuffleQuestions"`
		AutoAdvance      *bool `json:"autoAdvance"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = DefaultSettings()
	if raw.ShowMistakesOnly != nil {
		s.ShowMistakesOnly = *raw.ShowMistakesOnly
	}
	if raw.ShuffleQuestions != nil {
		s.ShuffleQuestions = *raw.ShuffleQuestions
	}
	if raw.AutoAdvance != nil {
		s.AutoAdvance = *raw.AutoAdvance
	}
	return nil
}

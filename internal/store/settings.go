package store

import (
	"context"
	"errors"
	"strings"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
)

const (
	settingShowMistakesOnly = "settings:showMistakesOnly"
	settingShuffleQuestions = "settings:shuffleQuestions"
	settingAutoAdvance      = "settings:autoAdvance"
)

func settingKey(name, userID string) string {
	return name + ":" + userID
}

// TopicAutoAdvanceKey is the per-topic auto-advance override.
func TopicAutoAdvanceKey(slug, userID string) string {
	return "test:autoAdvance:" + slug + ":" + userID
}

// SettingsStore persists test settings as plain "0"/"1" values.
type SettingsStore struct {
	kv KV
}

func NewSettingsStore(kv KV) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// Load returns the user's settings; unset or unreadable values fall back to
// DefaultSettings. A non-empty slug applies the topic's auto-advance override.
func (s *SettingsStore) Load(ctx context.Context, userID, slug string) (practicesession.TestSettings, error) {
	settings := practicesession.DefaultSettings()

	var err error
	if settings.ShowMistakesOnly, err = s.flag(ctx, settingKey(settingShowMistakesOnly, userID), settings.ShowMistakesOnly); err != nil {
		return settings, err
	}
	if settings.ShuffleQuestions, err = s.flag(ctx, settingKey(settingShuffleQuestions, userID), settings.ShuffleQuestions); err != nil {
		return settings, err
	}
	if settings.AutoAdvance, err = s.flag(ctx, settingKey(settingAutoAdvance, userID), settings.AutoAdvance); err != nil {
		return settings, err
	}
	if slug != "" {
		if settings.AutoAdvance, err = s.flag(ctx, TopicAutoAdvanceKey(slug, userID), settings.AutoAdvance); err != nil {
			return settings, err
		}
	}
	return settings, nil
}

// Save writes all three global settings.
func (s *SettingsStore) Save(ctx context.Context, userID string, settings practicesession.TestSettings) error {
	for key, value := range map[string]bool{
		settingShowMistakesOnly: settings.ShowMistakesOnly,
		settingShuffleQuestions: settings.ShuffleQuestions,
		settingAutoAdvance:      settings.AutoAdvance,
	} {
		if err := s.kv.Set(ctx, settingKey(key, userID), encodeFlag(value)); err != nil {
			return err
		}
	}
	return nil
}

// SaveTopicAutoAdvance stores the per-topic auto-advance override.
func (s *SettingsStore) SaveTopicAutoAdvance(ctx context.Context, userID, slug string, enabled bool) error {
	return s.kv.Set(ctx, TopicAutoAdvanceKey(slug, userID), encodeFlag(enabled))
}

func (s *SettingsStore) flag(ctx context.Context, key string, fallback bool) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	switch strings.TrimSpace(string(raw)) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return fallback, nil
}

func encodeFlag(v bool) []byte {
	if v {
		return []byte("1")
	}
	return []byte("0")
}

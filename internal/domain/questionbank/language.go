package questionbank

import "strings"

// Language identifies one localized copy of the question bank.
type Language string

const (
	LangUzLatn Language = "uz-Latn"
	LangUzCyrl Language = "uz-Cyrl"
	LangRu     Language = "ru"

	DefaultLanguage = LangUzLatn
)

var SupportedLanguages = []Language{LangUzLatn, LangUzCyrl, LangRu}

var topicTitlePrefix = map[Language]string{
	LangUzLatn: "Bo'lim",
	LangUzCyrl: "Бўлим",
	LangRu:     "Раздел",
}

var topicSubtitle = map[Language]string{
	LangUzLatn: "Nazariy savollar",
	LangUzCyrl: "Назарий саволлар",
	LangRu:     "Теоретические вопросы",
}

// Supported reports whether l is one of the bundled languages.
func (l Language) Supported() bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

// ParseLanguage maps a language tag to a supported Language. Exact matches win,
// then a case-insensitive match, then the primary subtag ("ru-RU" -> ru).
// Anything else resolves to fallback, or DefaultLanguage when fallback is empty.
func ParseLanguage(tag string, fallback Language) Language {
	if !fallback.Supported() {
		fallback = DefaultLanguage
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fallback
	}
	for _, s := range SupportedLanguages {
		if string(s) == tag {
			return s
		}
	}
	for _, s := range SupportedLanguages {
		if strings.EqualFold(string(s), tag) {
			return s
		}
	}
	primary, _, _ := strings.Cut(strings.ToLower(tag), "-")
	switch primary {
	case "ru":
		return LangRu
	case "uz":
		if strings.Contains(strings.ToLower(tag), "cyrl") {
			return LangUzCyrl
		}
		return LangUzLatn
	}
	return fallback
}

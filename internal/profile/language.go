package profile

import (
	"strings"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

var languageAliases = map[string]domain.Language{
	"lt":         domain.LanguageLT,
	"lietuvių":   domain.LanguageLT,
	"lietuviu":   domain.LanguageLT,
	"lithuanian": domain.LanguageLT,
	"en":         domain.LanguageEN,
	"english":    domain.LanguageEN,
	"ru":         domain.LanguageRU,
	"русский":    domain.LanguageRU,
	"russian":    domain.LanguageRU,
	"lv":         domain.LanguageLV,
	"latviešu":   domain.LanguageLV,
	"latviesu":   domain.LanguageLV,
	"latvian":    domain.LanguageLV,
}

// ParseLanguage maps a language code, a native language name, or a keyboard
// label such as "🇱🇹 LT" onto a supported language.
func ParseLanguage(raw string) (domain.Language, error) {
	text := strings.ToLower(Sanitize(raw, 32))
	if text == "" {
		return "", fail(FieldLanguage, ReasonInvalidFormat)
	}

	if lang, ok := languageAliases[text]; ok {
		return lang, nil
	}

	for _, token := range strings.Fields(text) {
		if lang, ok := languageAliases[token]; ok {
			return lang, nil
		}
	}
	return "", fail(FieldLanguage, ReasonUnrecognizedOption)
}

// NormalizeLanguage returns lang when supported and fallback otherwise.
func NormalizeLanguage(lang domain.Language, fallback domain.Language) domain.Language {
	if lang.Code() != "" {
		return lang
	}
	return fallback
}

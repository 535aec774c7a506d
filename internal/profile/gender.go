package profile

import (
	"strings"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

var genderTerms = map[domain.Language]map[domain.Gender]string{
	domain.LanguageLT: {domain.GenderFemale: "moteris", domain.GenderMale: "vyras"},
	domain.LanguageEN: {domain.GenderFemale: "woman", domain.GenderMale: "man"},
	domain.LanguageRU: {domain.GenderFemale: "женщина", domain.GenderMale: "мужчина"},
	domain.LanguageLV: {domain.GenderFemale: "sieviete", domain.GenderMale: "vīrietis"},
}

// GenderOptions returns the vocabulary shown to the user, female first.
func GenderOptions(lang domain.Language) []string {
	terms := genderTerms[NormalizeLanguage(lang, domain.LanguageEN)]
	return []string{terms[domain.GenderFemale], terms[domain.GenderMale]}
}

// GenderLabel renders g in lang.
func GenderLabel(g domain.Gender, lang domain.Language) string {
	return genderTerms[NormalizeLanguage(lang, domain.LanguageEN)][g]
}

// ParseGender maps an answer onto the vocabulary. Terms of the session
// language are tried first, then every other supported language.
func ParseGender(raw string, lang domain.Language) (domain.Gender, error) {
	text := strings.ToLower(Sanitize(raw, 32))
	if text == "" {
		return "", fail(FieldGender, ReasonInvalidFormat)
	}

	if g, ok := lookupGender(text, lang); ok {
		return g, nil
	}
	for _, other := range domain.Languages {
		if other == lang {
			continue
		}
		if g, ok := lookupGender(text, other); ok {
			return g, nil
		}
	}
	return "", fail(FieldGender, ReasonUnrecognizedOption)
}

func lookupGender(text string, lang domain.Language) (domain.Gender, bool) {
	for g, term := range genderTerms[lang] {
		if term == text {
			return g, true
		}
	}
	return "", false
}

package prompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

func testProfile(lang domain.Language) *domain.UserProfile {
	return &domain.UserProfile{
		ID:        1,
		Name:      "Ona",
		BirthDate: time.Date(1990, time.March, 21, 0, 0, 0, 0, time.UTC),
		Language:  lang,
		Gender:    domain.GenderFemale,
		Hobbies:   "chess",
		Active:    true,
	}
}

func TestBuildLocalizesAttributes(t *testing.T) {
	b, err := NewBuilder(400, 0.8)
	require.NoError(t, err)

	day := time.Date(2025, time.June, 2, 7, 30, 0, 0, time.UTC)

	testCases := []struct {
		lang        domain.Language
		zodiac      string
		gender      string
		unspecified string
	}{
		{lang: domain.LanguageLT, zodiac: "Avinas", gender: "moteris", unspecified: "nenurodyta"},
		{lang: domain.LanguageEN, zodiac: "Aries", gender: "woman", unspecified: "not specified"},
		{lang: domain.LanguageRU, zodiac: "Овен", gender: "женщина", unspecified: "не указано"},
		{lang: domain.LanguageLV, zodiac: "Auns", gender: "sieviete", unspecified: "nav norādīts"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.lang), func(t *testing.T) {
			p, err := b.Build(testProfile(tc.lang), day)
			require.NoError(t, err)

			assert.NotEmpty(t, p.System)
			assert.Contains(t, p.User, "Ona")
			assert.Contains(t, p.User, "1990-03-21")
			assert.Contains(t, p.User, "2025-06-02")
			assert.Contains(t, p.User, tc.zodiac)
			assert.Contains(t, p.User, tc.gender)
			assert.Contains(t, p.User, tc.unspecified)
			assert.Contains(t, p.User, "chess")
			assert.Equal(t, 400, p.MaxTokens)
			assert.InDelta(t, 0.8, p.Temperature, 0.0001)
		})
	}
}

func TestBuildFallsBackToEnglish(t *testing.T) {
	b, err := Parse([]byte("en:\n  system: sys\n  unspecified: n/a\n  user: \"Hi {{ .Name }}, {{ .Zodiac }}\"\n"), 0, 0)
	require.NoError(t, err)

	p, err := b.Build(testProfile(domain.LanguageRU), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "sys", p.System)
	assert.Equal(t, "Hi Ona, Aries", p.User)
}

func TestParseRejectsBadTemplates(t *testing.T) {
	_, err := Parse([]byte("xx:\n  user: hi\n"), 0, 0)
	assert.Error(t, err)

	_, err = Parse([]byte("lt:\n  user: hi\n"), 0, 0)
	assert.Error(t, err, "missing english fallback")

	_, err = Parse([]byte("en:\n  user: \"{{ .Name \"\n"), 0, 0)
	assert.Error(t, err)

	_, err = Parse([]byte("en:\n  user: \"{{ .Unknown }}\"\n"), 0, 0)
	require.NoError(t, err)
}

func TestBuildUnknownFieldFails(t *testing.T) {
	b, err := Parse([]byte("en:\n  user: \"{{ .Unknown }}\"\n"), 0, 0)
	require.NoError(t, err)

	_, err = b.Build(testProfile(domain.LanguageEN), time.Now())
	assert.Error(t, err)
}

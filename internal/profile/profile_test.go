package profile

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()

	var failure *ValidationFailure
	require.True(t, errors.As(err, &failure), "expected validation failure, got %v", err)
	return failure.Reason
}

func TestZodiacSign(t *testing.T) {
	tests := []struct {
		name  string
		month time.Month
		day   int
		want  domain.ZodiacSign
	}{
		{"taurus mid", time.May, 15, domain.Taurus},
		{"aries first day", time.March, 21, domain.Aries},
		{"pisces last day", time.March, 20, domain.Pisces},
		{"capricorn december", time.December, 22, domain.Capricorn},
		{"capricorn january", time.January, 19, domain.Capricorn},
		{"aquarius first day", time.January, 20, domain.Aquarius},
		{"sagittarius last day", time.December, 21, domain.Sagittarius},
		{"leap day", time.February, 29, domain.Pisces},
		{"virgo boundary", time.August, 23, domain.Virgo},
		{"leo boundary", time.August, 22, domain.Leo},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ZodiacSign(tc.month, tc.day))
		})
	}
}

func TestZodiacSignCoversEveryDay(t *testing.T) {
	seen := map[domain.ZodiacSign]int{}
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for day.Year() == 2024 {
		seen[ZodiacOf(day)]++
		day = day.AddDate(0, 0, 1)
	}

	assert.Len(t, seen, 12)
	for sign, days := range seen {
		assert.GreaterOrEqual(t, days, 29, "sign %s", sign)
	}
}

func TestZodiacName(t *testing.T) {
	assert.Equal(t, "Jautis", ZodiacName(domain.Taurus, domain.LanguageLT))
	assert.Equal(t, "Taurus", ZodiacName(domain.Taurus, domain.LanguageEN))
	assert.Equal(t, "Телец", ZodiacName(domain.Taurus, domain.LanguageRU))
	assert.Equal(t, "Vērsis", ZodiacName(domain.Taurus, domain.LanguageLV))
	assert.Equal(t, "Taurus", ZodiacName(domain.Taurus, ""))
}

func TestParseBirthDate(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	date, err := ParseBirthDate(" 1990-05-15 ", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(1990, time.May, 15, 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, domain.Taurus, ZodiacOf(date))

	_, err = ParseBirthDate("2024-06-01", now)
	assert.NoError(t, err, "today is accepted")

	tests := []struct {
		input string
		want  Reason
	}{
		{"2099-01-01", ReasonOutOfRange},
		{"2024-06-02", ReasonOutOfRange},
		{"1850-01-01", ReasonOutOfRange},
		{"not-a-date", ReasonInvalidFormat},
		{"1990-02-30", ReasonInvalidFormat},
		{"1990-13-01", ReasonInvalidFormat},
		{"15.05.1990", ReasonInvalidFormat},
		{"1990-5-15", ReasonInvalidFormat},
		{"", ReasonInvalidFormat},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			_, err := ParseBirthDate(tc.input, now)
			assert.Equal(t, tc.want, reasonOf(t, err))
		})
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  domain.Language
	}{
		{"EN", domain.LanguageEN},
		{"lt", domain.LanguageLT},
		{"🇷🇺 RU", domain.LanguageRU},
		{"Latviešu", domain.LanguageLV},
		{"  english ", domain.LanguageEN},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLanguage(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseLanguage("klingon")
	assert.Equal(t, ReasonUnrecognizedOption, reasonOf(t, err))

	_, err = ParseLanguage("   ")
	assert.Equal(t, ReasonInvalidFormat, reasonOf(t, err))
}

func TestParseGender(t *testing.T) {
	g, err := ParseGender("Man", domain.LanguageEN)
	require.NoError(t, err)
	assert.Equal(t, domain.GenderMale, g)

	g, err = ParseGender("moteris", domain.LanguageLT)
	require.NoError(t, err)
	assert.Equal(t, domain.GenderFemale, g)

	g, err = ParseGender("woman", domain.LanguageRU)
	require.NoError(t, err)
	assert.Equal(t, domain.GenderFemale, g)

	_, err = ParseGender("robot", domain.LanguageEN)
	assert.Equal(t, ReasonUnrecognizedOption, reasonOf(t, err))

	assert.Equal(t, []string{"sieviete", "vīrietis"}, GenderOptions(domain.LanguageLV))
	assert.Equal(t, "мужчина", GenderLabel(domain.GenderMale, domain.LanguageRU))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{"trims", "  Ann  ", 0, "Ann"},
		{"collapses whitespace", "Ann \t\n  Lee", 0, "Ann Lee"},
		{"strips control", "An\x00n\x07", 0, "Ann"},
		{"strips format chars", "A\u200bnn", 0, "Ann"},
		{"caps runes", "ąčęėįšųū", 3, "ąčę"},
		{"cap trims trailing space", "ab cd", 3, "ab"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Sanitize(tc.input, tc.limit)); diff != "" {
				t.Fatalf("Sanitize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	name, err := ValidateName("  Ann  ")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)

	_, err = ValidateName("   ")
	assert.Equal(t, ReasonInvalidFormat, reasonOf(t, err))

	_, err = ValidateName("A")
	assert.Equal(t, ReasonOutOfRange, reasonOf(t, err))

	_, err = ValidateName(strings.Repeat("a", MaxNameLength+1))
	assert.Equal(t, ReasonOutOfRange, reasonOf(t, err))
}

func TestValidateFreeText(t *testing.T) {
	profession, err := ValidateProfession("-")
	require.NoError(t, err)
	assert.Empty(t, profession)

	hobbies, err := ValidateHobbies(strings.Repeat("chess ", 200))
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(hobbies)), MaxHobbiesLength)

	_, err = ValidateProfession("\x01\x02")
	assert.Equal(t, ReasonInvalidFormat, reasonOf(t, err))

	_, err = ValidateHobbies("x")
	assert.Equal(t, ReasonOutOfRange, reasonOf(t, err))
}

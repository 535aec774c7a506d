package profile

import (
	"regexp"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// MinBirthYear is the earliest accepted year of birth.
const MinBirthYear = 1900

var birthDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseBirthDate parses a strict YYYY-MM-DD date. The date must exist on the
// calendar and may not be later than today's date in now's location.
func ParseBirthDate(raw string, now time.Time) (time.Time, error) {
	text := Sanitize(raw, 16)
	if !birthDatePattern.MatchString(text) {
		return time.Time{}, fail(FieldBirthDate, ReasonInvalidFormat)
	}

	date, err := time.Parse(domain.DateLayout, text)
	if err != nil {
		return time.Time{}, fail(FieldBirthDate, ReasonInvalidFormat)
	}

	today, _ := time.Parse(domain.DateLayout, now.Format(domain.DateLayout))
	if date.After(today) || date.Year() < MinBirthYear {
		return time.Time{}, fail(FieldBirthDate, ReasonOutOfRange)
	}
	return date, nil
}

// FormatDate renders a date in the storage layout.
func FormatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

package profile

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinNameLength       = 2
	MaxNameLength       = 100
	MaxProfessionLength = 200
	MaxHobbiesLength    = 500
)

// SkipAnswer lets the user leave an optional field empty.
const SkipAnswer = "-"

// Sanitize strips control characters, collapses whitespace runs into a
// single space, trims, and caps the result at maxRunes (0 means no cap).
func Sanitize(raw string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(raw))

	pendingSpace := false
	for _, r := range raw {
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}

	out := b.String()
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
	}
	return out
}

// ValidateName returns the sanitized name or a failure when it is empty or
// outside the allowed length.
func ValidateName(raw string) (string, error) {
	name := Sanitize(raw, 0)
	if name == "" {
		return "", fail(FieldName, ReasonInvalidFormat)
	}

	n := utf8.RuneCountInString(name)
	if n < MinNameLength || n > MaxNameLength {
		return "", fail(FieldName, ReasonOutOfRange)
	}
	return name, nil
}

// ValidateProfession accepts free text capped at MaxProfessionLength.
func ValidateProfession(raw string) (string, error) {
	return validateFreeText(FieldProfession, raw, MaxProfessionLength)
}

// ValidateHobbies accepts free text capped at MaxHobbiesLength.
func ValidateHobbies(raw string) (string, error) {
	return validateFreeText(FieldHobbies, raw, MaxHobbiesLength)
}

func validateFreeText(field Field, raw string, limit int) (string, error) {
	text := Sanitize(raw, limit)
	switch {
	case text == SkipAnswer:
		return "", nil
	case text == "":
		return "", fail(field, ReasonInvalidFormat)
	case utf8.RuneCountInString(text) < 2:
		return "", fail(field, ReasonOutOfRange)
	}
	return text, nil
}

package profile

import (
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

type zodiacRange struct {
	sign                 domain.ZodiacSign
	fromMonth, fromDay   int
	untilMonth, untilDay int
}

// Capricorn wraps the year boundary and is the fallthrough case.
var zodiacTable = []zodiacRange{
	{domain.Aquarius, 1, 20, 2, 18},
	{domain.Pisces, 2, 19, 3, 20},
	{domain.Aries, 3, 21, 4, 19},
	{domain.Taurus, 4, 20, 5, 20},
	{domain.Gemini, 5, 21, 6, 20},
	{domain.Cancer, 6, 21, 7, 22},
	{domain.Leo, 7, 23, 8, 22},
	{domain.Virgo, 8, 23, 9, 22},
	{domain.Libra, 9, 23, 10, 22},
	{domain.Scorpio, 10, 23, 11, 21},
	{domain.Sagittarius, 11, 22, 12, 21},
}

var zodiacNames = map[domain.ZodiacSign][4]string{
	domain.Aries:       {"Avinas", "Aries", "Овен", "Auns"},
	domain.Taurus:      {"Jautis", "Taurus", "Телец", "Vērsis"},
	domain.Gemini:      {"Dvyniai", "Gemini", "Близнецы", "Dvīņi"},
	domain.Cancer:      {"Vėžys", "Cancer", "Рак", "Vēzis"},
	domain.Leo:         {"Liūtas", "Leo", "Лев", "Lauva"},
	domain.Virgo:       {"Mergelė", "Virgo", "Дева", "Jaunava"},
	domain.Libra:       {"Svarstyklės", "Libra", "Весы", "Svari"},
	domain.Scorpio:     {"Skorpionas", "Scorpio", "Скорпион", "Skorpions"},
	domain.Sagittarius: {"Šaulys", "Sagittarius", "Стрелец", "Strēlnieks"},
	domain.Capricorn:   {"Ožiaragis", "Capricorn", "Козерог", "Mežāzis"},
	domain.Aquarius:    {"Vandenis", "Aquarius", "Водолей", "Ūdensvīrs"},
	domain.Pisces:      {"Žuvys", "Pisces", "Рыбы", "Zivis"},
}

// ZodiacSign returns the sign for a month/day pair. Interval boundaries are
// inclusive on both ends.
func ZodiacSign(month time.Month, day int) domain.ZodiacSign {
	md := int(month)*100 + day
	for _, r := range zodiacTable {
		if md >= r.fromMonth*100+r.fromDay && md <= r.untilMonth*100+r.untilDay {
			return r.sign
		}
	}
	return domain.Capricorn
}

// ZodiacOf derives the sign of a birth date.
func ZodiacOf(birthDate time.Time) domain.ZodiacSign {
	return ZodiacSign(birthDate.Month(), birthDate.Day())
}

// ZodiacName renders sign in lang, falling back to English.
func ZodiacName(sign domain.ZodiacSign, lang domain.Language) string {
	names, ok := zodiacNames[sign]
	if !ok {
		return string(sign)
	}

	switch lang {
	case domain.LanguageLT:
		return names[0]
	case domain.LanguageRU:
		return names[2]
	case domain.LanguageLV:
		return names[3]
	default:
		return names[1]
	}
}

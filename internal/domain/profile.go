package domain

import (
	"errors"
	"time"
)

// ErrProfileNotFound is returned by profile stores for unknown users.
var ErrProfileNotFound = errors.New("profile not found")

// Language is a supported conversation language.
type Language string

const (
	LanguageLT Language = "LT"
	LanguageEN Language = "EN"
	LanguageRU Language = "RU"
	LanguageLV Language = "LV"
)

// Languages lists supported languages in presentation order.
var Languages = []Language{LanguageLT, LanguageEN, LanguageRU, LanguageLV}

// Code returns the lower-case locale code used by catalogs.
func (l Language) Code() string {
	switch l {
	case LanguageLT:
		return "lt"
	case LanguageEN:
		return "en"
	case LanguageRU:
		return "ru"
	case LanguageLV:
		return "lv"
	default:
		return ""
	}
}

// Gender is the canonical gender value stored with a profile.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// ZodiacSign is one of the twelve western zodiac signs.
type ZodiacSign string

const (
	Aries       ZodiacSign = "aries"
	Taurus      ZodiacSign = "taurus"
	Gemini      ZodiacSign = "gemini"
	Cancer      ZodiacSign = "cancer"
	Leo         ZodiacSign = "leo"
	Virgo       ZodiacSign = "virgo"
	Libra       ZodiacSign = "libra"
	Scorpio     ZodiacSign = "scorpio"
	Sagittarius ZodiacSign = "sagittarius"
	Capricorn   ZodiacSign = "capricorn"
	Aquarius    ZodiacSign = "aquarius"
	Pisces      ZodiacSign = "pisces"
)

// UserProfile is a completed registration. Incomplete answers never reach
// this type; they live in the conversation session until commit.
type UserProfile struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	BirthDate        time.Time `json:"birth_date"`
	Language         Language  `json:"language"`
	Gender           Gender    `json:"gender"`
	Profession       string    `json:"profession,omitempty"`
	Hobbies          string    `json:"hobbies,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastDeliveryDate *Window   `json:"last_delivery_date,omitempty"`
	Active           bool      `json:"active"`
}

// DeliveredIn reports whether the profile already received the window's horoscope.
func (p *UserProfile) DeliveredIn(w Window) bool {
	return p != nil && p.LastDeliveryDate != nil && *p.LastDeliveryDate == w
}

// EligibleFor reports whether the scheduled loop should deliver to the profile in w.
func (p *UserProfile) EligibleFor(w Window) bool {
	return p != nil && p.Active && !p.DeliveredIn(w)
}

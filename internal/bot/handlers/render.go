package handlers

import (
	"fmt"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/keyboard"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/i18n"
	"github.com/Proton-105/horoscope-bot/internal/profile"
	"github.com/Proton-105/horoscope-bot/internal/state"
)

const dateLayout = "2006-01-02"

var questionKeys = map[state.State]string{
	state.StateAwaitingLanguage:   "registration.choose_language",
	state.StateAwaitingName:       "registration.ask_name",
	state.StateAwaitingGender:     "registration.ask_gender",
	state.StateAwaitingBirthDate:  "registration.ask_birth_date",
	state.StateAwaitingProfession: "registration.ask_profession",
	state.StateAwaitingHobbies:    "registration.ask_hobbies",
}

// Renderer turns machine outcomes and profiles into localized replies.
type Renderer struct {
	catalog *i18n.Manager
}

func NewRenderer(catalog *i18n.Manager) *Renderer {
	return &Renderer{catalog: catalog}
}

// Translator returns the catalog of lang.
func (r *Renderer) Translator(lang domain.Language) i18n.Translator {
	return r.catalog.Translator(profile.NormalizeLanguage(lang, domain.LanguageEN).Code())
}

// Question renders the prompt of a registration step with its keyboard.
func (r *Renderer) Question(st state.State, lang domain.Language) (string, *telebot.ReplyMarkup) {
	t := r.Translator(lang)
	text := t.T(questionKeys[st])

	switch st {
	case state.StateAwaitingLanguage:
		return text, keyboard.LanguageMenu()
	case state.StateAwaitingGender:
		return text, keyboard.GenderMenu(lang)
	case state.StateAwaitingProfession, state.StateAwaitingHobbies:
		return text, keyboard.SkipMenu()
	default:
		return text, keyboard.Remove()
	}
}

// Failure explains why an answer was rejected. A key per field and reason
// wins over the per-field key.
func (r *Renderer) Failure(f *profile.ValidationFailure, lang domain.Language) string {
	t := r.Translator(lang)
	if f == nil {
		return t.T(apperrors.MsgInvalidInput)
	}

	specific := fmt.Sprintf("validation.%s.%s", f.Field, f.Reason)
	if t.Has(specific) {
		return t.T(specific)
	}
	general := fmt.Sprintf("validation.%s", f.Field)
	if t.Has(general) {
		return t.T(general)
	}
	return t.T(apperrors.MsgInvalidInput)
}

// Outcome renders the reply for a machine operation.
func (r *Renderer) Outcome(out state.Outcome) (string, *telebot.ReplyMarkup) {
	lang := profile.NormalizeLanguage(out.Language, domain.LanguageEN)
	t := r.Translator(lang)

	switch out.Effect {
	case state.EffectPrompt:
		return r.Question(out.State, lang)
	case state.EffectReprompt:
		question, markup := r.Question(out.State, lang)
		if out.Failure == nil {
			return question, markup
		}
		return r.Failure(out.Failure, lang) + "\n\n" + question, markup
	case state.EffectComplete:
		name, sign := "", ""
		if out.Profile != nil {
			name = out.Profile.Name
			sign = profile.ZodiacName(profile.ZodiacOf(out.Profile.BirthDate), lang)
		}
		return t.Tf("registration.complete", name, sign), keyboard.Remove()
	case state.EffectCancelled:
		return t.T("registration.cancelled"), keyboard.Remove()
	case state.EffectAlreadyRegistered:
		return t.T("registration.already_registered"), nil
	case state.EffectNoSession:
		return t.T("registration.no_session"), nil
	default:
		return t.T(apperrors.MsgGeneric), nil
	}
}

// Profile renders a stored profile card.
func (r *Renderer) Profile(p *domain.UserProfile) string {
	lang := profile.NormalizeLanguage(p.Language, domain.LanguageEN)
	t := r.Translator(lang)

	optional := func(v string) string {
		if v == "" {
			return t.T("profile.not_specified")
		}
		return v
	}
	status := t.T("profile.paused")
	if p.Active {
		status = t.T("profile.active")
	}

	return t.Tf("profile.view",
		p.Name,
		p.BirthDate.Format(dateLayout),
		profile.ZodiacName(profile.ZodiacOf(p.BirthDate), lang),
		profile.GenderLabel(p.Gender, lang),
		optional(p.Profession),
		optional(p.Hobbies),
		keyboard.LanguageLabel(lang),
		status,
	)
}

package state

import (
	"errors"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/profile"
)

type step struct {
	field profile.Field
	apply func(d *Draft, raw string, now time.Time) error
	next  State
}

// registrationFlow drives the dialogue: each state validates one field and
// names its successor.
var registrationFlow = map[State]step{
	StateAwaitingLanguage: {
		field: profile.FieldLanguage,
		apply: func(d *Draft, raw string, _ time.Time) error {
			lang, err := profile.ParseLanguage(raw)
			d.Language = lang
			return err
		},
		next: StateAwaitingName,
	},
	StateAwaitingName: {
		field: profile.FieldName,
		apply: func(d *Draft, raw string, _ time.Time) error {
			name, err := profile.ValidateName(raw)
			d.Name = name
			return err
		},
		next: StateAwaitingGender,
	},
	StateAwaitingGender: {
		field: profile.FieldGender,
		apply: func(d *Draft, raw string, _ time.Time) error {
			gender, err := profile.ParseGender(raw, d.Language)
			d.Gender = gender
			return err
		},
		next: StateAwaitingBirthDate,
	},
	StateAwaitingBirthDate: {
		field: profile.FieldBirthDate,
		apply: func(d *Draft, raw string, now time.Time) error {
			date, err := profile.ParseBirthDate(raw, now)
			d.BirthDate = date
			return err
		},
		next: StateAwaitingProfession,
	},
	StateAwaitingProfession: {
		field: profile.FieldProfession,
		apply: func(d *Draft, raw string, _ time.Time) error {
			text, err := profile.ValidateProfession(raw)
			d.Profession = text
			return err
		},
		next: StateAwaitingHobbies,
	},
	StateAwaitingHobbies: {
		field: profile.FieldHobbies,
		apply: func(d *Draft, raw string, _ time.Time) error {
			text, err := profile.ValidateHobbies(raw)
			d.Hobbies = text
			return err
		},
		next: StateComplete,
	},
}

// NextState returns the successor of from, or "" for terminal states.
func NextState(from State) State {
	return registrationFlow[from].next
}

// IsTransitionAllowed reports whether from may advance to to.
func IsTransitionAllowed(from, to State) bool {
	st, ok := registrationFlow[from]
	return ok && st.next == to
}

// Transition applies raw to the session's current step. On success the
// returned session has the field stored and the next step set; on failure the
// session is returned unchanged together with the reason.
func Transition(s Session, raw string, now time.Time) (Session, Effect, *profile.ValidationFailure) {
	st, ok := registrationFlow[s.Step]
	if !ok {
		return s, EffectNoSession, nil
	}

	draft := s.Draft
	if err := st.apply(&draft, raw, now); err != nil {
		var failure *profile.ValidationFailure
		if !errors.As(err, &failure) {
			failure = &profile.ValidationFailure{Field: st.field, Reason: profile.ReasonInvalidFormat}
		}
		return s, EffectReprompt, failure
	}

	s.Draft = draft
	s.Step = st.next
	if s.Step == StateComplete {
		return s, EffectComplete, nil
	}
	return s, EffectPrompt, nil
}

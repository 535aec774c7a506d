package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/profile"
)

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		from, to State
		want     bool
	}{
		{StateAwaitingLanguage, StateAwaitingName, true},
		{StateAwaitingName, StateAwaitingGender, true},
		{StateAwaitingHobbies, StateComplete, true},
		{StateAwaitingLanguage, StateAwaitingGender, false},
		{StateAwaitingBirthDate, StateAwaitingName, false},
		{StateComplete, StateAwaitingLanguage, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransitionAllowed(tc.from, tc.to))
		})
	}
}

func TestRegistrationFlowVisitsEveryState(t *testing.T) {
	visited := []State{}
	for st := StateAwaitingLanguage; st != StateComplete; st = NextState(st) {
		visited = append(visited, st)
	}
	assert.Equal(t, RegistrationStates, visited)
}

func TestTransitionIsPure(t *testing.T) {
	in := Session{UserID: 1, Step: StateAwaitingGender, Draft: Draft{Language: domain.LanguageEN, Name: "Ann"}}

	next, effect, failure := Transition(in, "robot", testNow)
	assert.Equal(t, EffectReprompt, effect)
	assert.Equal(t, profile.ReasonUnrecognizedOption, failure.Reason)
	assert.Equal(t, in, next)

	next, effect, failure = Transition(in, "woman", testNow)
	assert.Nil(t, failure)
	assert.Equal(t, EffectPrompt, effect)
	assert.Equal(t, StateAwaitingBirthDate, next.Step)
	assert.Equal(t, domain.GenderFemale, next.Draft.Gender)
	assert.Equal(t, StateAwaitingGender, in.Step, "input session untouched")
	assert.Empty(t, in.Draft.Gender)

	_, effect, _ = Transition(Session{Step: StateComplete}, "x", testNow)
	assert.Equal(t, EffectNoSession, effect)
}

package state

import (
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/profile"
)

// State is a registration step.
type State string

const (
	StateAwaitingLanguage   State = "awaiting_language"
	StateAwaitingName       State = "awaiting_name"
	StateAwaitingGender     State = "awaiting_gender"
	StateAwaitingBirthDate  State = "awaiting_birth_date"
	StateAwaitingProfession State = "awaiting_profession"
	StateAwaitingHobbies    State = "awaiting_hobbies"
	StateComplete           State = "complete"
)

// RegistrationStates lists the non-terminal steps in dialogue order.
var RegistrationStates = []State{
	StateAwaitingLanguage,
	StateAwaitingName,
	StateAwaitingGender,
	StateAwaitingBirthDate,
	StateAwaitingProfession,
	StateAwaitingHobbies,
}

// Draft holds the answers collected so far.
type Draft struct {
	Language   domain.Language `json:"language,omitempty"`
	Name       string          `json:"name,omitempty"`
	Gender     domain.Gender   `json:"gender,omitempty"`
	BirthDate  time.Time       `json:"birth_date,omitempty"`
	Profession string          `json:"profession,omitempty"`
	Hobbies    string          `json:"hobbies,omitempty"`
}

// Session is an in-progress registration dialogue.
type Session struct {
	UserID    int64     `json:"user_id"`
	Step      State     `json:"step"`
	Draft     Draft     `json:"draft"`
	Seq       int64     `json:"seq"`
	Reset     bool      `json:"reset"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is one inbound answer. MessageID increases per chat and identifies
// redelivered messages.
type Input struct {
	MessageID int64
	Text      string
}

// Effect tells the transport what to show after an operation.
type Effect string

const (
	// EffectPrompt asks the question of Outcome.State.
	EffectPrompt Effect = "prompt"
	// EffectReprompt repeats the question of Outcome.State, with Failure set
	// unless the input was a duplicate.
	EffectReprompt Effect = "reprompt"
	// EffectComplete reports a committed profile.
	EffectComplete Effect = "complete"
	// EffectCancelled reports a discarded session.
	EffectCancelled Effect = "cancelled"
	// EffectNoSession means there is no registration in progress.
	EffectNoSession Effect = "no_session"
	// EffectAlreadyRegistered means the user already has a complete profile.
	EffectAlreadyRegistered Effect = "already_registered"
)

// Outcome is the result of a machine operation.
type Outcome struct {
	State     State
	Effect    Effect
	Language  domain.Language
	Failure   *profile.ValidationFailure
	Duplicate bool
	Profile   *domain.UserProfile
}

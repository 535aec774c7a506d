// Package profile validates registration answers and derives profile
// attributes. Every function here is pure and safe for concurrent use.
package profile

import "fmt"

// Field names a profile attribute collected during registration.
type Field string

const (
	FieldLanguage   Field = "language"
	FieldName       Field = "name"
	FieldGender     Field = "gender"
	FieldBirthDate  Field = "birth_date"
	FieldProfession Field = "profession"
	FieldHobbies    Field = "hobbies"
)

// Reason classifies why an answer was rejected.
type Reason string

const (
	ReasonInvalidFormat      Reason = "invalid_format"
	ReasonOutOfRange         Reason = "out_of_range"
	ReasonUnrecognizedOption Reason = "unrecognized_option"
)

// ValidationFailure is returned for answers that cannot be accepted.
type ValidationFailure struct {
	Field  Field
	Reason Reason
}

func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Reason)
}

func fail(field Field, reason Reason) *ValidationFailure {
	return &ValidationFailure{Field: field, Reason: reason}
}

package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind is the error category shared by every component.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindRateLimited       Kind = "rate_limited"
	KindTransientProvider Kind = "transient_provider"
	KindFatalProvider     Kind = "fatal_provider"
	KindPersistence       Kind = "persistence"
	KindTransport         Kind = "transport"
	KindState             Kind = "state"
)

// User message keys resolved through the i18n catalogs.
const (
	MsgGeneric         = "errors.generic"
	MsgTryAgainShortly = "errors.try_again_shortly"
	MsgRateLimited     = "errors.rate_limited"
	MsgInvalidInput    = "errors.invalid_input"
	MsgWrongState      = "errors.wrong_state"
)

type AppError struct {
	Code        string
	Kind        Kind
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Kind:        KindValidation,
		Message:     msg,
		UserMessage: MsgInvalidInput,
		Severity:    SeverityLow,
	}
}

func NewPersistenceError(op string, cause error) *AppError {
	return &AppError{
		Code:        "E200",
		Kind:        KindPersistence,
		Message:     fmt.Sprintf("persistence error: %s", op),
		UserMessage: MsgTryAgainShortly,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewTransientProviderError(target string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Kind:        KindTransientProvider,
		Message:     fmt.Sprintf("provider %s unavailable", target),
		UserMessage: MsgTryAgainShortly,
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewFatalProviderError(target string, cause error) *AppError {
	return &AppError{
		Code:        "E310",
		Kind:        KindFatalProvider,
		Message:     fmt.Sprintf("provider %s rejected request", target),
		UserMessage: MsgGeneric,
		Severity:    SeverityHigh,
		cause:       cause,
	}
}

func NewTransportError(op string, cause error) *AppError {
	return &AppError{
		Code:        "E320",
		Kind:        KindTransport,
		Message:     fmt.Sprintf("transport error: %s", op),
		UserMessage: MsgTryAgainShortly,
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        "E400",
		Kind:        KindState,
		Message:     msg,
		UserMessage: MsgWrongState,
		Severity:    SeverityMedium,
	}
}

func NewRateLimitError(key string) *AppError {
	return &AppError{
		Code:        "E500",
		Kind:        KindRateLimited,
		Message:     fmt.Sprintf("rate limit exceeded for %s", key),
		UserMessage: MsgRateLimited,
		Severity:    SeverityLow,
	}
}

// KindOf returns the category of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

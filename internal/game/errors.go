package game

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a domain error so the request boundary can report it to the
// initiating actor. All kinds are recoverable business conditions, never
// panics.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound means a referenced war, push, country or player is absent.
	KindNotFound
	// KindInvalidState means the operation was attempted from a terminal or
	// wrong state, or against a halted entity.
	KindInvalidState
	// KindInvalidTarget means a war was declared against an unclaimed country
	// or against the aggressor itself.
	KindInvalidTarget
	// KindForbidden means the actor lacks the required relationship.
	KindForbidden
	// KindConflict means a uniqueness rule was violated.
	KindConflict
	// KindCooldown means a rate limit has not elapsed yet.
	KindCooldown
	// KindInsufficientResources means a ledger debit would go negative.
	KindInsufficientResources
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidTarget:
		return "invalid_target"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindCooldown:
		return "cooldown"
	case KindInsufficientResources:
		return "insufficient_resources"
	default:
		return "unknown"
	}
}

// Error is a classified domain error. Cooldown errors carry the remaining
// wait; insufficient-resources errors carry the required amount.
type Error struct {
	Kind      Kind
	Msg       string
	Remaining time.Duration
	Required  int64
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCooldown:
		return fmt.Sprintf("%s: %s (%s remaining)", e.Kind, e.Msg, e.Remaining.Round(time.Millisecond))
	case KindInsufficientResources:
		return fmt.Sprintf("%s: %s (%d required)", e.Kind, e.Msg, e.Required)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func invalidStatef(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func invalidTargetf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTarget, Msg: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func cooldownErr(msg string, remaining time.Duration) *Error {
	return &Error{Kind: KindCooldown, Msg: msg, Remaining: remaining}
}

func insufficientErr(msg string, required int64) *Error {
	return &Error{Kind: KindInsufficientResources, Msg: msg, Required: required}
}

// KindOf extracts the Kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

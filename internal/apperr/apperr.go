// Package apperr defines the coded errors surfaced to clients and the
// transient marker for infrastructure failures.
package apperr

import "errors"

// Kind groups codes by how callers should react to them.
type Kind int

const (
	// KindPolicy covers ineligible state; safe to show verbatim, never retried.
	KindPolicy Kind = iota
	// KindNotFound covers stale or unknown references.
	KindNotFound
	// KindForbidden covers references to someone else's session or request.
	KindForbidden
	// KindInvalid covers malformed input.
	KindInvalid
)

// Error is a coded, user-visible error.
type Error struct {
	Code    string
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Code: code, Message: message, Kind: kind}
}

var (
	ErrAlreadyInQueue    = newError(KindPolicy, "ALREADY_IN_QUEUE", "already waiting in the queue")
	ErrInSession         = newError(KindPolicy, "IN_SESSION", "already in an active session")
	ErrRestricted        = newError(KindPolicy, "RESTRICTED", "trust category does not allow matching")
	ErrSkipCooldown      = newError(KindPolicy, "SKIP_COOLDOWN", "skip is on cooldown")
	ErrInsufficientCoins = newError(KindPolicy, "INSUFFICIENT_COINS", "not enough coins")
	ErrAlreadySubmitted  = newError(KindPolicy, "ALREADY_SUBMITTED", "feedback already submitted")
	ErrAlreadyReported   = newError(KindPolicy, "ALREADY_REPORTED", "complaint already filed")
	ErrAlreadyReviewed   = newError(KindPolicy, "ALREADY_REVIEWED", "complaint already reviewed")

	ErrNotFound = newError(KindNotFound, "NOT_FOUND", "not found")

	ErrNotAuthorized = newError(KindForbidden, "NOT_AUTHORIZED", "not a participant of this session")

	ErrInvalidReceiver = newError(KindInvalid, "INVALID_RECEIVER", "receiver is not the session partner")
	ErrInvalidAmount   = newError(KindInvalid, "INVALID_AMOUNT", "amount must be positive")
	ErrInvalidRating   = newError(KindInvalid, "INVALID_RATING", "rating must be between 1 and 5")
	ErrInvalidTarget   = newError(KindInvalid, "INVALID_TARGET", "target must be the session partner")
	ErrInvalidReason   = newError(KindInvalid, "INVALID_REASON", "unknown complaint reason")
	ErrInvalidAction   = newError(KindInvalid, "INVALID_ACTION", "unknown review action")
)

// As returns the coded error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Code returns the code of the coded error in err's chain, or "" if there is none.
func Code(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as a retryable infrastructure failure. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked by Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

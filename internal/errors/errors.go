package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller is expected to react to it.
type Kind int

const (
	KindUnknown Kind = iota
	NotFound
	Conflict
	Forbidden
	Unauthenticated
	Expired
	LimitExceeded
	CapacityExceeded
	PolicyRejected
	NotEligible
	InvalidToken
	Invalid
	Transient
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case Unauthenticated:
		return "unauthenticated"
	case Expired:
		return "expired"
	case LimitExceeded:
		return "limit_exceeded"
	case CapacityExceeded:
		return "capacity_exceeded"
	case PolicyRejected:
		return "policy_rejected"
	case NotEligible:
		return "not_eligible"
	case InvalidToken:
		return "invalid_token"
	case Invalid:
		return "invalid"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another classified error with the same kind and message, so a
// sentinel still matches after being re-wrapped with extra context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message != "" && t.Message == e.Message
}

// New creates a classified error with a caller-visible message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. The wrapped error stays reachable through errors.Is/As.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the caller-visible message of a classified error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return Message(e.Err)
		}
	}
	return err.Error()
}

var (
	ErrUnauthorized = New(Unauthenticated, "user is not authorized")
	ErrForbidden    = New(Forbidden, "operation is forbidden for user")

	ErrEventNotFound     = New(NotFound, "event not found")
	ErrEventNotAvailable = New(PolicyRejected, "event not available")
	ErrTicketNotFound    = New(NotFound, "ticket not found")
	ErrTicketExpired     = New(Expired, "ticket expired")
	ErrLimitExceeded     = New(LimitExceeded, "exceeds per-user limit")
	ErrCapacityExceeded  = New(CapacityExceeded, "not enough tickets available")
	ErrInvalidQuantity   = New(Invalid, "quantity must be positive")
	ErrDonationTooLow    = New(PolicyRejected, "donation below ticket minimum")

	ErrAttendeeNotFound   = New(NotFound, "attendee not found")
	ErrAttendeeWaitlisted = New(PolicyRejected, "attendee is waitlisted")
	ErrAlreadyCheckedIn   = New(Conflict, "attendee already checked in")

	ErrOfferNotFound  = New(NotFound, "offer not found or expired")
	ErrOfferForbidden = New(Forbidden, "offer does not belong to this user")
	ErrOfferExpired   = New(Expired, "offer expired")

	ErrPaymentNotFound    = New(NotFound, "payment not found")
	ErrPaymentNotSettled  = New(NotEligible, "payment not settled")
	ErrPaymentNotCaptured = New(NotEligible, "payment has no captured charge")
	ErrRefundConflict     = New(Conflict, "payment refund state changed concurrently")

	ErrInvalidToken       = New(InvalidToken, "invalid check-in token")
	ErrInvalidSignature   = New(InvalidToken, "invalid gateway signature")
	ErrGatewayUnavailable = New(Transient, "charge gateway unavailable")
)

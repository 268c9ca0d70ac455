package exchange

import "fmt"

// ErrorKind classifies user-recoverable errors. Anything not representable
// as one of these (balance signs wrong, state mutated where it mustn't be,
// a duplicate order id reaching the index) is a programming error and
// panics instead — see Error's doc comment.
type ErrorKind int

const (
	// KindValidation covers malformed order requests: non-positive amount,
	// bad precision, a non-positive limit or stop price.
	KindValidation ErrorKind = iota
	// KindInsufficientBalance covers a required balance exceeding what's
	// available at order submission.
	KindInsufficientBalance
	// KindNotFound covers an unknown order id on cancel or info lookup.
	KindNotFound
	// KindIllegalState covers cancelling an order that is no longer open.
	KindIllegalState
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindNotFound:
		return "not_found"
	case KindIllegalState:
		return "illegal_state"
	default:
		return "unknown"
	}
}

// Error is the one user-visible error category the exchange raises.
// Submitting a malformed request, running short of balance, or cancelling
// an order that doesn't exist or isn't open all surface as an *Error;
// callers distinguish cases via Kind. The exchange's state is left
// unchanged whenever an *Error is returned.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange: %s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

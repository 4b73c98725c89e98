package service

import (
	"errors"
	"strings"
)

// Kind tells callers how to react to an error: prompt the customer, ask them
// to retry later, or drop the input silently.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindTransient
	KindUntrusted
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindUntrusted:
		return "untrusted"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a service error with a kind. Sentinels are compared by identity.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Errors returned by the storefront services.
var (
	ErrEmptyCart            = &Error{KindValidation, "cart is empty"}
	ErrProfileIncomplete    = &Error{KindValidation, "customer profile is incomplete"}
	ErrInvalidQuantity      = &Error{KindValidation, "quantity must be >= 0"}
	ErrInvalidLineIndex     = &Error{KindValidation, "cart line does not exist"}
	ErrInvalidPrice         = &Error{KindValidation, "unit price must be >= 0"}
	ErrOutOfStock           = &Error{KindValidation, "variant is out of stock"}
	ErrRequestNameRequired  = &Error{KindValidation, "desired product name is required"}
	ErrInvalidRequestStatus = &Error{KindValidation, "invalid product request status"}
	ErrGatewayUnavailable   = &Error{KindTransient, "payment gateway unavailable"}
	ErrPaymentNotCompleted  = &Error{KindTransient, "payment was not completed"}
	ErrPaymentPending       = &Error{KindTransient, "payment capture is still pending"}
	ErrUntrustedWebhook     = &Error{KindUntrusted, "webhook signature could not be verified"}
	ErrOrderNotFound        = &Error{KindNotFound, "order not found"}
	ErrProductNotFound      = &Error{KindNotFound, "product not found"}
	ErrRequestNotFound      = &Error{KindNotFound, "product request not found"}
	ErrNotRefundable        = &Error{KindConflict, "order is not paid"}
	ErrAlreadyRefunded      = &Error{KindConflict, "order refund already processed"}
	ErrInvalidTransition    = &Error{KindConflict, "order status does not allow this action"}
	ErrNoCaptureID          = &Error{KindConflict, "payment receipt has no capture id"}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ProfileIncompleteError lists the profile fields checkout is waiting for.
type ProfileIncompleteError struct {
	Missing []string
}

func (e *ProfileIncompleteError) Error() string {
	return ErrProfileIncomplete.Msg + ": missing " + strings.Join(e.Missing, ", ")
}

func (e *ProfileIncompleteError) Unwrap() error { return ErrProfileIncomplete }

package session

import (
	"errors"
	"fmt"
)

// Kind classifies every failure a session operation can report.
type Kind int

const (
	ProviderUnavailable Kind = iota + 1
	UserRejected
	ProviderError
	UnsupportedNetwork
	UnknownNetwork
	SwitchFailed
	NotConnected
	BalanceFetchFailed
	InvalidAddress
	InvalidAmount
	InsufficientBalance
	TransferFailed
	Busy
)

var kindNames = map[Kind]string{
	ProviderUnavailable: "provider unavailable",
	UserRejected:        "user rejected",
	ProviderError:       "provider error",
	UnsupportedNetwork:  "unsupported network",
	UnknownNetwork:      "unknown network",
	SwitchFailed:        "switch failed",
	NotConnected:        "not connected",
	BalanceFetchFailed:  "balance fetch failed",
	InvalidAddress:      "invalid address",
	InvalidAmount:       "invalid amount",
	InsufficientBalance: "insufficient balance",
	TransferFailed:      "transfer failed",
	Busy:                "busy",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified session failure. Err keeps the underlying cause for display.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a session error, or zero if err is not one.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsKind reports whether err is a session error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// causeMessage is the text shown to the user for a failure's cause.
func causeMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}

// Package cverr defines the error kinds surfaced at the plugin boundary.
package cverr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the normalized failure signal returned across the C boundary.
// The numeric values are part of the ABI.
type Kind int32

const (
	OK Kind = iota
	OpenFailed
	DecodeFailed
	NotInitialized
	EmptyResult
	InvalidArgument
	InvalidHandle
	Internal
)

var kindNames = [...]string{
	OK:              "ok",
	OpenFailed:      "open failed",
	DecodeFailed:    "decode failed",
	NotInitialized:  "not initialized",
	EmptyResult:     "empty result",
	InvalidArgument: "invalid argument",
	InvalidHandle:   "invalid handle",
	Internal:        "internal error",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int32(k))
	}
	return kindNames[k]
}

// Kinds lists every defined kind in ABI order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Error carries a kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a formatted cause.
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried anywhere in err's chain. Untagged errors
// are Internal and nil is OK.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

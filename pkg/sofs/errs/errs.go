// Package errs defines the SOFS14 error taxonomy: a closed set of numeric
// error kinds with stable names, returned as *Error values from every core
// operation.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a closed-set error classification. Kind values are stable and
// must never be renumbered: callers may persist or compare them.
type Kind int

// Error kinds, grouped the way spec.md §7 groups them.
const (
	// Argument/shape
	EINVAL Kind = iota + 1
	ENAMETOOLONG
	ERELPATH

	// Resource
	ENOSPC
	EMLINK
	EFBIG

	// Not found / already
	ENOENT
	EEXIST
	ENOTEMPTY
	ENOTDIR

	// Permission
	EACCES
	EPERM

	// Traversal
	ELOOP

	// Structural consistency (must never occur on a well-formed volume)
	EIUININVAL
	EFININVAL
	EFDININVAL
	ELDCININVAL
	EDCINVAL
	EDCARDYIL
	EDCNOTIL
	EDCNALINVAL
	EWGINODENB
	EDIRINVAL
	EDEINVAL
	EDCMINVAL
	ELIBBAD

	// I/O
	EIO
	EBADF
)

var names = map[Kind]string{
	EINVAL:       "EINVAL",
	ENAMETOOLONG: "ENAMETOOLONG",
	ERELPATH:     "ERELPATH",
	ENOSPC:       "ENOSPC",
	EMLINK:       "EMLINK",
	EFBIG:        "EFBIG",
	ENOENT:       "ENOENT",
	EEXIST:       "EEXIST",
	ENOTEMPTY:    "ENOTEMPTY",
	ENOTDIR:      "ENOTDIR",
	EACCES:       "EACCES",
	EPERM:        "EPERM",
	ELOOP:        "ELOOP",
	EIUININVAL:   "EIUININVAL",
	EFININVAL:    "EFININVAL",
	EFDININVAL:   "EFDININVAL",
	ELDCININVAL:  "ELDCININVAL",
	EDCINVAL:     "EDCINVAL",
	EDCARDYIL:    "EDCARDYIL",
	EDCNOTIL:     "EDCNOTIL",
	EDCNALINVAL:  "EDCNALINVAL",
	EWGINODENB:   "EWGINODENB",
	EDIRINVAL:    "EDIRINVAL",
	EDEINVAL:     "EDEINVAL",
	EDCMINVAL:    "EDCMINVAL",
	ELIBBAD:      "ELIBBAD",
	EIO:          "EIO",
	EBADF:        "EBADF",
}

// String returns the stable textual name of a Kind, e.g. "ENOSPC".
func (k Kind) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// structuralKinds are the ones spec.md §7 says "must never occur on a
// well-formed volume" — they indicate a bug or on-disk corruption rather
// than a normal operational failure.
var structuralKinds = map[Kind]bool{
	EIUININVAL:  true,
	EFININVAL:   true,
	EFDININVAL:  true,
	ELDCININVAL: true,
	EDCINVAL:    true,
	EDCARDYIL:   true,
	EDCNOTIL:    true,
	EDCNALINVAL: true,
	EWGINODENB:  true,
	EDIRINVAL:   true,
	EDEINVAL:    true,
	EDCMINVAL:   true,
	ELIBBAD:     true,
}

// IsStructural reports whether k belongs to the structural-consistency
// class: a violation of this kind means the volume (or the caller) broke an
// invariant the spec treats as impossible on a well-formed volume.
func (k Kind) IsStructural() bool {
	return structuralKinds[k]
}

// Error is the concrete error type every core operation returns. It carries
// a Kind, a human-readable message, and an optional wrapped cause (used
// when the Kind was derived from a lower-level failure, e.g. device I/O).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As work against it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around a lower-level cause,
// attaching a stack trace to the cause with github.com/pkg/errors'
// WithStack.
func Wrap(k Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return New(k, format, args...)
	}
	return &Error{
		Kind:    k,
		Message: fmt.Sprintf(format, args...),
		Cause:   errors.WithStack(cause),
	}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

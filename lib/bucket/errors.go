package bucket

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrorKind classifies the failure of a single bucket operation.
type ErrorKind uint8

const (
	KindInternal          ErrorKind = iota // 0: operation failed due to an internal error
	KindAlreadyExists                      // 1: insert on a present key
	KindNotExists                          // 2: operation on an absent key
	KindCasMismatch                        // 3: caller-supplied CAS does not equal the stored CAS
	KindLocked                             // 4: lock contention (lock, unlock or write against an active lock)
	KindTooBig                             // 5: payload or resulting value exceeds the size ceiling
	KindDurabilityTimeout                  // 6: mutation committed but the durability quorum was not reached in time
	KindInvalidValue                       // 7: stored value is not usable for the operation (e.g. counter on non-numeric data)
)

func (k ErrorKind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindNotExists:
		return "NotExists"
	case KindCasMismatch:
		return "CasMismatch"
	case KindLocked:
		return "TemporaryLockFailure"
	case KindTooBig:
		return "RequestTooBig"
	case KindDurabilityTimeout:
		return "DurabilityTimeout"
	case KindInvalidValue:
		return "InvalidValue"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all bucket operations. It wraps an
// ErrorKind so callers can dispatch on the failure class without string
// matching.
//
// Note: KindDurabilityTimeout is special. It does NOT imply that the
// mutation failed - the local write has committed, only the durability
// acknowledgment is missing. Callers must treat the stored value as changed.
type Error struct {
	Kind ErrorKind // The failure class
	Msg  string    // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("BucketError (%s): %s", e.Kind, e.Msg)
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// --------------------------------------------------------------------------
// Constructors for the common failure classes
// --------------------------------------------------------------------------

// ErrAlreadyExists reports an insert on a present key.
func ErrAlreadyExists(key string) *Error {
	return NewError(KindAlreadyExists, fmt.Sprintf("document %q already exists", key))
}

// ErrNotExists reports an operation on an absent key.
func ErrNotExists(key string) *Error {
	return NewError(KindNotExists, fmt.Sprintf("document %q does not exist", key))
}

// ErrCasMismatch reports a CAS-qualified operation with a stale token.
func ErrCasMismatch(key string) *Error {
	return NewError(KindCasMismatch, fmt.Sprintf("cas mismatch on document %q", key))
}

// ErrLocked reports contention against an active lock.
func ErrLocked(key string) *Error {
	return NewError(KindLocked, fmt.Sprintf("document %q is locked", key))
}

// ErrTooBig reports a value exceeding the admission ceiling.
func ErrTooBig(key string, size, limit int) *Error {
	return NewError(KindTooBig, fmt.Sprintf("value for document %q is %d bytes, limit is %d", key, size, limit))
}

// ErrDurabilityTimeout reports that the durability quorum for a committed
// mutation was not reached before the deadline.
func ErrDurabilityTimeout(key string, cas uint64) *Error {
	return NewError(KindDurabilityTimeout, fmt.Sprintf("durability requirements for document %q (cas %d) not met before deadline", key, cas))
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// IsKind reports whether err is a bucket Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

package quota

import "errors"

var (
	// ErrParse marks a ledger document that exists but cannot be decoded.
	ErrParse = errors.New("ledger document is corrupt")
	// ErrInvalidCount is returned for increments below one.
	ErrInvalidCount = errors.New("usage increment must be at least 1")
)

// PersistenceError reports a failed ledger operation. The Tracker has already
// degraded the result when it returns one: callers log it and carry on.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "quota " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is a degraded ledger failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

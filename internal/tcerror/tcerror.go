// Package tcerror defines the error taxonomy shared by the task database
// engine and the public API.
//
// Every failure surfaced by this module is one of a small set of concrete
// types so that callers can branch with errors.As() instead of string
// matching:
//
//	var serr *tcerror.StorageError
//	if errors.As(err, &serr) {
//	    // backend I/O or consistency failure; caller decides whether to retry
//	}
//
// The taxonomy is deliberately flat: ThreadError (programming error, never
// retried), ValidationError (bad input, caught before any mutation),
// StorageError (backend failure), SyncError (network/remote failure),
// ConfigError (malformed storage/server configuration).
package tcerror

import "fmt"

// Error is implemented by every error type in the taxonomy. The unexported
// method keeps the set closed.
type Error interface {
	error
	taskchampionError()
}

// ThreadError reports that a goroutine-confined object was accessed from a
// goroutine other than the one that created it. This is a programming error:
// it is never retried and the failing call has no side effects.
type ThreadError struct {
	Msg string
}

func (e *ThreadError) Error() string      { return e.Msg }
func (e *ThreadError) taskchampionError() {}

// StorageError reports an I/O or consistency failure in the backing store.
type StorageError struct {
	Msg string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}
func (e *StorageError) Unwrap() error      { return e.Err }
func (e *StorageError) taskchampionError() {}

// ValidationError reports bad input caught before any mutation took place.
// The caller may fix the input and retry.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string      { return e.Msg }
func (e *ValidationError) taskchampionError() {}

// ConfigError reports a malformed storage or server configuration. It is
// surfaced at setup time and not retried automatically.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string      { return e.Msg }
func (e *ConfigError) taskchampionError() {}

// SyncError reports a network or remote failure during synchronization.
type SyncError struct {
	Msg string
	Err error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}
func (e *SyncError) Unwrap() error      { return e.Err }
func (e *SyncError) taskchampionError() {}

// GenericError is the catch-all for failures that fit no specific category.
type GenericError struct {
	Msg string
	Err error
}

func (e *GenericError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}
func (e *GenericError) Unwrap() error      { return e.Err }
func (e *GenericError) taskchampionError() {}

// Threadf builds a ThreadError.
func Threadf(format string, args ...any) *ThreadError {
	return &ThreadError{Msg: fmt.Sprintf(format, args...)}
}

// Storagef builds a StorageError without a wrapped cause.
func Storagef(format string, args ...any) *StorageError {
	return &StorageError{Msg: fmt.Sprintf(format, args...)}
}

// StorageWrap builds a StorageError wrapping err.
func StorageWrap(err error, format string, args ...any) *StorageError {
	return &StorageError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Configf builds a ConfigError.
func Configf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Syncf builds a SyncError without a wrapped cause.
func Syncf(format string, args ...any) *SyncError {
	return &SyncError{Msg: fmt.Sprintf(format, args...)}
}

// SyncWrap builds a SyncError wrapping err.
func SyncWrap(err error, format string, args ...any) *SyncError {
	return &SyncError{Msg: fmt.Sprintf(format, args...), Err: err}
}

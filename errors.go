package taskchampion

import (
	"errors"
	"strings"

	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// Error is the root of the error taxonomy. Every error surfaced by this
// package is one of the concrete types below; callers branch with
// errors.As.
type Error = tcerror.Error

// ThreadError reports that a goroutine-confined object was accessed from a
// goroutine other than the one that created it.
type ThreadError = tcerror.ThreadError

// StorageError reports an I/O or consistency failure in the backing store.
type StorageError = tcerror.StorageError

// ValidationError reports bad input, caught before any mutation took place.
type ValidationError = tcerror.ValidationError

// ConfigError reports a malformed storage or server configuration.
type ConfigError = tcerror.ConfigError

// SyncError reports a network or remote failure during synchronization.
type SyncError = tcerror.SyncError

// GenericError is the catch-all category for failures Classify cannot place
// more specifically.
type GenericError = tcerror.GenericError

// Classify places an arbitrary error into the taxonomy.
//
// Errors already carrying a taxonomy type are returned as-is. Foreign
// errors are classified by keyword evidence in their message; the branches
// are checked in a fixed order (storage, then sync, then config, then
// validation), so a message matching several categories resolves to the
// first. This string matching is a fallback for errors from outside the
// engine and is inherently heuristic.
func Classify(err error) Error {
	if err == nil {
		return nil
	}

	var terr *tcerror.ThreadError
	if errors.As(err, &terr) {
		return terr
	}
	var serr *tcerror.StorageError
	if errors.As(err, &serr) {
		return serr
	}
	var verr *tcerror.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	var cerr *tcerror.ConfigError
	if errors.As(err, &cerr) {
		return cerr
	}
	var yerr *tcerror.SyncError
	if errors.As(err, &yerr) {
		return yerr
	}
	var gerr *tcerror.GenericError
	if errors.As(err, &gerr) {
		return gerr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "storage", "database", "permission"):
		return &StorageError{Msg: msg, Err: err}
	case containsAny(lower, "sync", "server", "network"):
		return &SyncError{Msg: msg, Err: err}
	case containsAny(lower, "config"):
		return &ConfigError{Msg: msg}
	case containsAny(lower, "invalid", "parse", "format"):
		return &ValidationError{Msg: msg}
	}
	return &GenericError{Msg: msg, Err: err}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

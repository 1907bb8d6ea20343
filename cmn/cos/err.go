// Package cos provides common low-level types, the error taxonomy, and byte
// utilities shared by every package in the module.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"sync"
)

// Flat error-kind taxonomy (spec §7). Each kind is its own type so that
// errors.As lets a caller recover the kind without string matching. There
// are no sentinel values; the Is* helpers below are errors.As wrappers.
type (
	// ErrObsoleteVersion: put with a non-strictly-newer version.
	ErrObsoleteVersion struct{ Key string }
	// ErrInconsistentMetadata: metadata has more than one current version.
	ErrInconsistentMetadata struct{ Key string }
	// ErrStoreNotFound: named store definition missing.
	ErrStoreNotFound struct{ Name string }
	// ErrUnknownMetadataKey: key is not in the reserved metadata-key set.
	ErrUnknownMetadataKey struct{ Key string }
	// ErrPermissionDenied: delete/iterate attempted on the metadata store.
	ErrPermissionDenied struct{ Op string }
	// ErrInvalidClockFormat: truncated or unsorted vector-clock wire bytes.
	ErrInvalidClockFormat struct{ Reason string }
	// ErrInvalidRequest: malformed admin-wire frame.
	ErrInvalidRequest struct{ Reason string }
	// ErrIO wraps a network or disk error; the affected socket must be closed.
	ErrIO struct{ Cause error }
	// ErrTimeout: socket or pool-checkout timeout.
	ErrTimeout struct{ Op string }
	// ErrNotSupported: the underlying engine lacks a required capability.
	ErrNotSupported struct{ Op string }
)

func (e *ErrObsoleteVersion) Error() string {
	return fmt.Sprintf("obsolete version for key %q", e.Key)
}
func (e *ErrInconsistentMetadata) Error() string {
	return fmt.Sprintf("inconsistent metadata for key %q: more than one current version", e.Key)
}
func (e *ErrStoreNotFound) Error() string { return fmt.Sprintf("store %q not found", e.Name) }
func (e *ErrUnknownMetadataKey) Error() string {
	return fmt.Sprintf("unknown metadata key %q", e.Key)
}
func (e *ErrPermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: %s is not supported on the metadata store", e.Op)
}
func (e *ErrInvalidClockFormat) Error() string { return "invalid clock format: " + e.Reason }
func (e *ErrInvalidRequest) Error() string     { return "invalid request: " + e.Reason }
func (e *ErrIO) Error() string                 { return "io: " + e.Cause.Error() }
func (e *ErrIO) Unwrap() error                  { return e.Cause }
func (e *ErrTimeout) Error() string            { return fmt.Sprintf("timeout: %s", e.Op) }
func (e *ErrNotSupported) Error() string       { return fmt.Sprintf("not supported: %s", e.Op) }

func IsObsoleteVersion(err error) bool {
	var e *ErrObsoleteVersion
	return errors.As(err, &e)
}

func IsInconsistentMetadata(err error) bool {
	var e *ErrInconsistentMetadata
	return errors.As(err, &e)
}

func IsStoreNotFound(err error) bool {
	var e *ErrStoreNotFound
	return errors.As(err, &e)
}

func IsNotSupported(err error) bool {
	var e *ErrNotSupported
	return errors.As(err, &e)
}

func IsTimeout(err error) bool {
	var e *ErrTimeout
	return errors.As(err, &e)
}

// Errs accumulates distinct errors up to a small cap, for callers whose
// independent operations may each fail and who want to report all of them
// at once rather than the first. The store GetAll fan-outs do not use it;
// they report the first error through errgroup.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}

// Package errs defines the tagged error kinds shared across the vault core.
//
// Every component raises one of these kinds rather than ad-hoc error
// strings, so callers (the File Service, and anything built on top of it)
// can branch on errors.Is / errors.As without depending on a specific
// driver or storage implementation.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags the category of failure. It is never compared for equality
// directly by callers; use errors.Is against the sentinel Kind values
// below, or Is(err, KindX).
type Kind string

const (
	// KindUsageError means the caller violated a precondition: a missing
	// map key, a bad status value, a non-map argument.
	KindUsageError Kind = "usage_error"
	// KindUploadPrepError means prepare_storage failed.
	KindUploadPrepError Kind = "upload_prep_error"
	// KindUploadError means uploading a single chunk failed.
	KindUploadError Kind = "upload_error"
	// KindDownloadError means downloading a single chunk failed, including
	// the "no attachment" case.
	KindDownloadError Kind = "download_error"
	// KindMalformedChunk means a ciphertext chunk was too short or its
	// padding was invalid.
	KindMalformedChunk Kind = "malformed_chunk"
	// KindNotFound means a Catalog lookup by id returned nothing.
	KindNotFound Kind = "not_found"
	// KindUnsupportedPlatform means a Backend Registry lookup missed.
	KindUnsupportedPlatform Kind = "unsupported_platform"
	// KindConfigInvalid means the Config Validator returned errors and the
	// caller did not allow them.
	KindConfigInvalid Kind = "config_invalid"
	// KindNoChunks means a download was requested for a file with an empty
	// chunk set.
	KindNoChunks Kind = "no_chunks"
	// KindKeyManagerError means a Key Manager wrap/unwrap/health-check call
	// failed.
	KindKeyManagerError Kind = "key_manager_error"
	// KindChunkSizeMismatch means a resume was requested with a chunk_size
	// different from the one the file was originally created with.
	KindChunkSizeMismatch Kind = "chunk_size_mismatch"
)

// Error is the concrete error type carrying a Kind, a message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.New(kind, "")) to match on Kind alone,
// ignoring Message and Cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel builds a zero-value error for use with errors.Is, e.g.:
//
//	if errors.Is(err, errs.Sentinel(errs.KindNotFound)) { ... }
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap)
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested record does not exist. Lookups of
	// sections return a nil result instead; this is for registry records.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a record failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSectionImmutable indicates an attempt to change a stored section in
	// place. Corrections require a new Version.
	ErrSectionImmutable = errors.New("section already stored with different content")

	// ErrUnknownVersion indicates a section references a version that was
	// never stored.
	ErrUnknownVersion = errors.New("unknown version")
)

// MalformedDocumentError is returned when markup cannot be turned into a
// section tree. Path locates the offending element.
type MalformedDocumentError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	msg := fmt.Sprintf("malformed document at %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// ConflictingCurrentVersionError is returned when storing a version would
// leave more than one current version for a source.
type ConflictingCurrentVersionError struct {
	SourceID   string
	VersionIDs []string
}

func (e *ConflictingCurrentVersionError) Error() string {
	return fmt.Sprintf("conflicting current versions for source %s: %s",
		e.SourceID, strings.Join(e.VersionIDs, ", "))
}

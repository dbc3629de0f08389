package backup

import (
	"errors"
	"fmt"
)

// ErrIntegrity matches every *IntegrityError via errors.Is.
var ErrIntegrity = errors.New("backup integrity check failed")

// ErrUnknownCollection is returned when a CSV file name does not start with
// a tracked collection name.
var ErrUnknownCollection = errors.New("unknown backup collection")

// IntegrityError reports a snapshot file whose checksum sidecar is missing
// or does not match the file content.
type IntegrityError struct {
	// Path is the CSV file that failed verification.
	Path string

	// Reason is a short description, e.g. "checksum sidecar missing".
	Reason string

	// Expected is the digest stored in the sidecar, if one was read.
	Expected string

	// Actual is the digest of the CSV bytes, if computed.
	Actual string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: %s: %s (want %s, got %s)", ErrIntegrity, e.Path, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: %s: %s", ErrIntegrity, e.Path, e.Reason)
}

// Is reports whether target is ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// ParseError reports a snapshot CSV that is well-formed on disk but does not
// decode into records: wrong header, wrong field count, unparsable values or
// records that fail validation.
type ParseError struct {
	Path string

	// Row is the 1-based CSV record number; the header is row 1.
	Row int

	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s row %d: %v", e.Path, e.Row, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsIntegrityError returns true if err is or wraps an *IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// IsParseError returns true if err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// rowError locates a decode failure within the data rows of one file.
type rowError struct {
	index int
	err   error
}

func (e *rowError) Error() string {
	return fmt.Sprintf("record %d: %v", e.index, e.err)
}

func (e *rowError) Unwrap() error {
	return e.err
}

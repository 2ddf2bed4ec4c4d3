package fileintake

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrFileNotFound indicates a file record was not found (or is
	// soft-deleted and the caller did not ask for deleted records).
	ErrFileNotFound = errors.New("file not found")

	// ErrObjectNotFound indicates a physical key is absent from a storage
	// backend.
	ErrObjectNotFound = errors.New("object not found")

	// ErrStorageBackendNotFound indicates a storage backend was not registered.
	ErrStorageBackendNotFound = errors.New("storage backend not found")

	// ErrInvalidCategory indicates a category value outside the fixed enum.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrDuplicateSequenceConflict indicates a concurrent upload won the
	// (owner_id, content_digest, duplicate_sequence) slot. Retried internally.
	ErrDuplicateSequenceConflict = errors.New("duplicate sequence conflict")

	// ErrUpdateConflict indicates a lost-update race on a single-row write.
	ErrUpdateConflict = errors.New("update conflict")

	// ErrMirrorNotConfigured indicates no document host is wired into the
	// service.
	ErrMirrorNotConfigured = errors.New("mirror host not configured")

	// ErrUnsupportedMedia indicates a generator/extractor does not handle the
	// media type.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// ValidationReason is the machine-readable sub-reason of a ValidationError.
type ValidationReason string

const (
	ReasonTooLarge        ValidationReason = "too_large"
	ReasonUnsupportedType ValidationReason = "unsupported_type"
	ReasonTypeMismatch    ValidationReason = "type_mismatch"
	ReasonEmptyFile       ValidationReason = "empty_file"
	ReasonBadName         ValidationReason = "bad_name"
)

// ValidationError rejects an upload before any hashing or storage work.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

// FileError represents an error related to file lifecycle operations
type FileError struct {
	FileID uuid.UUID
	Op     string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file operation %s failed for file %s: %v", e.Op, e.FileID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// MirrorError represents a failure while syncing a file to the external
// document host. Retryable errors are re-attempted with backoff; others are
// recorded as mirror_failed immediately.
type MirrorError struct {
	Provider  string
	Op        string
	Retryable bool
	Err       error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror operation %s failed on provider %s: %v", e.Op, e.Provider, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

// IsRetryable implements the retry hint consumed by the task runner.
func (e *MirrorError) IsRetryable() bool { return e.Retryable }

// GenerationError represents a thumbnail generation failure. Never surfaced
// to the upload caller; recorded on the record's thumbnail fields.
type GenerationError struct {
	FileID uuid.UUID
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("thumbnail generation failed for file %s: %v", e.FileID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

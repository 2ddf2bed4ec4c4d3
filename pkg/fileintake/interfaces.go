package fileintake

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends.
//
// Upload is the durability checkpoint of the intake pipeline: once it
// returns nil the upload is committed, regardless of what later side tasks
// do. Download and Delete return ErrObjectNotFound (possibly wrapped) for
// absent keys.
type BlobStore interface {
	// Upload writes content under objectKey, overwriting any previous bytes.
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams uploads content with additional parameters
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download reads content back by objectKey.
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes content by objectKey.
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for a stored object.
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// Repository defines the interface for file record persistence.
//
// CreateFile must enforce uniqueness of (owner_id, content_digest,
// duplicate_sequence) and of physical_key, returning
// ErrDuplicateSequenceConflict for the former so the orchestrator can
// re-resolve and retry. The per-field-group writers (SetCategory,
// UpdateThumbnail, UpdateMirror, UpdateProcessing, SoftDeleteFile,
// RestoreFile) each perform a single atomic row update touching only their
// own columns, so concurrent side tasks never clobber each other.
type Repository interface {
	CreateFile(ctx context.Context, record *FileRecord) error
	GetFile(ctx context.Context, id uuid.UUID, includeDeleted bool) (*FileRecord, error)
	ListFiles(ctx context.Context, ownerID uuid.UUID, filters FileListFilters) ([]*FileRecord, error)

	// Duplicate index queries. Sequence assignment covers every record that
	// still holds a slot, soft-deleted included; purged records free theirs.
	// MaxSequenceByOwnerAndDigest reports found=false when no record holds
	// the digest. GetOriginalByOwnerAndDigest returns the surviving record
	// with the lowest sequence, which may not be sequence zero after a
	// purge, or ErrFileNotFound when none survives.
	MaxSequenceByOwnerAndDigest(ctx context.Context, ownerID uuid.UUID, digest string) (int, bool, error)
	GetOriginalByOwnerAndDigest(ctx context.Context, ownerID uuid.UUID, digest string) (*FileRecord, error)
	DisplayNameTaken(ctx context.Context, ownerID uuid.UUID, name string) (bool, error)

	RenameFile(ctx context.Context, id uuid.UUID, displayName string) error

	SoftDeleteFile(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error
	RestoreFile(ctx context.Context, id uuid.UUID) error
	HardDeleteFile(ctx context.Context, id uuid.UUID) error

	SetCategory(ctx context.Context, id uuid.UUID, actorID uuid.UUID, category Category) error
	CategoryStats(ctx context.Context, ownerID uuid.UUID) (*CategoryStats, error)

	UpdateThumbnail(ctx context.Context, id uuid.UUID, update ThumbnailUpdate) error
	UpdateMirror(ctx context.Context, id uuid.UUID, update MirrorUpdate) error
	UpdateProcessing(ctx context.Context, id uuid.UUID, update ProcessingUpdate) error

	// Resweep queries for the scheduled retry pass.
	ListByMirrorStatus(ctx context.Context, status MirrorStatus, limit int) ([]*FileRecord, error)
	ListByThumbnailStatus(ctx context.Context, status ThumbnailStatus, limit int) ([]*FileRecord, error)
}

// DocumentHost is the external document-hosting provider a stored file is
// mirrored to. Implementations receive a pre-authorized capability (token
// source, service account); token acquisition is not this package's concern.
type DocumentHost interface {
	// Upload pushes a copy of the file and returns the provider-side id.
	Upload(ctx context.Context, name, mimeType string, reader io.Reader) (string, error)

	// ConvertToNative converts an uploaded file into the provider's editable
	// document format, returning the native document id.
	ConvertToNative(ctx context.Context, externalID string) (string, error)

	// Share grants the given account edit access to the external copy.
	Share(ctx context.Context, externalID, email string) error

	// Exists verifies a previously mirrored copy is still present.
	Exists(ctx context.Context, externalID string) (bool, error)
}

// Thumbnailer derives a small preview image from document bytes.
type Thumbnailer interface {
	// Generate returns encoded image bytes bounded by dims, or
	// ErrUnsupportedMedia (possibly wrapped) when the media type cannot be
	// rendered.
	Generate(ctx context.Context, src []byte, mimeType string, dims Dimensions) ([]byte, error)

	// Supports reports whether the media type can be rendered at all.
	Supports(mimeType string) bool
}

// TextExtractor converts stored bytes to plain text.
type TextExtractor interface {
	Extract(ctx context.Context, src []byte, mimeType string) (string, error)
}

// TaskRunner executes best-effort background work decoupled from the
// request path. Implementations bound concurrency and apply per-task retry.
// Submit reports whether the work was accepted; duplicates of in-flight
// work may be dropped.
type TaskRunner interface {
	Submit(name string, key string, fn func(ctx context.Context) error) bool
}

package fileintake

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service defines the main interface of the file intake and lifecycle core.
//
// Upload can fail only with *ValidationError or *StorageError; every step
// past the storage commit point degrades to a recorded status on the record
// instead of an error surfaced to the caller.
type Service interface {
	// Lifecycle operations
	Upload(ctx context.Context, req UploadRequest) (*FileRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*FileRecord, error)
	List(ctx context.Context, req ListRequest) ([]*FileRecord, error)
	Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
	Rename(ctx context.Context, req RenameRequest) (*FileRecord, error)
	Delete(ctx context.Context, req DeleteRequest) error
	Restore(ctx context.Context, id, actorID uuid.UUID) error

	// Administrative paths. These see soft-deleted records; Purge is the
	// irreversible hard delete.
	AdminGet(ctx context.Context, id uuid.UUID) (*FileRecord, error)
	AdminDownload(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
	Purge(ctx context.Context, id uuid.UUID) error

	// Category operations
	SetCategory(ctx context.Context, req SetCategoryRequest) error
	BulkSetCategory(ctx context.Context, req BulkSetCategoryRequest) (*BulkCategoryResult, error)
	CategoryStats(ctx context.Context, ownerID uuid.UUID) (*CategoryStats, error)

	// Side-task handlers. Enqueued automatically after Upload; exposed for
	// retries and the scheduled resweep. All are idempotent per record.
	GenerateThumbnail(ctx context.Context, id uuid.UUID) error
	SyncMirror(ctx context.Context, id uuid.UUID) error
	ExtractText(ctx context.Context, id uuid.UUID) error
	DownloadThumbnail(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)

	// ResweepFailed re-enqueues records stuck in mirror_failed or
	// thumbnail failed states. Driven by the cron schedule in the binary.
	ResweepFailed(ctx context.Context) error

	// Storage backend operations
	RegisterBackend(name string, backend BlobStore)
	GetBackend(name string) (BlobStore, error)

	// Close drains the internally owned task runner. A no-op when the
	// runner was injected.
	Close()
}

package fileintake

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus tracks text extraction for a file record.
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// ThumbnailStatus tracks preview image generation for a file record.
type ThumbnailStatus string

const (
	ThumbnailStatusPending     ThumbnailStatus = "pending"
	ThumbnailStatusGenerating  ThumbnailStatus = "generating"
	ThumbnailStatusCompleted   ThumbnailStatus = "completed"
	ThumbnailStatusFailed      ThumbnailStatus = "failed"
	ThumbnailStatusUnavailable ThumbnailStatus = "unavailable"
)

// MirrorStatus tracks replication of a file to the external document host.
type MirrorStatus string

const (
	MirrorStatusNotMirrored  MirrorStatus = "not_mirrored"
	MirrorStatusMirroring    MirrorStatus = "mirroring"
	MirrorStatusMirrored     MirrorStatus = "mirrored"
	MirrorStatusMirrorFailed MirrorStatus = "mirror_failed"
)

// Category is the user-facing organizational label on a file record.
type Category string

const (
	CategoryActive   Category = "active"
	CategoryArchived Category = "archived"
	CategoryDraft    Category = "draft"
)

// Valid reports whether c is one of the persistable category values.
func (c Category) Valid() bool {
	switch c {
	case CategoryActive, CategoryArchived, CategoryDraft:
		return true
	}
	return false
}

// Categories lists every persistable category value.
func Categories() []Category {
	return []Category{CategoryActive, CategoryArchived, CategoryDraft}
}

// FileRecord is the central metadata entity for an uploaded file.
//
// PhysicalKey, ContentDigest, OwnerID, DuplicateSequence and
// OriginalRecordID are immutable after creation. Status fields are owned by
// their respective background tasks and updated independently of each other.
type FileRecord struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`

	DisplayName string `json:"display_name"`
	PhysicalKey string `json:"physical_key"`
	SizeBytes   int64  `json:"size_bytes"`
	MediaType   string `json:"media_type"`

	ContentDigest     string     `json:"content_digest"`
	DuplicateSequence int        `json:"duplicate_sequence"`
	OriginalRecordID  *uuid.UUID `json:"original_record_id,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessingError  string           `json:"processing_error,omitempty"`
	ExtractedText    string           `json:"-"`
	TextPreview      string           `json:"text_preview,omitempty"`

	ThumbnailStatus ThumbnailStatus `json:"thumbnail_status"`
	ThumbnailKey    *string         `json:"thumbnail_key,omitempty"`
	ThumbnailError  string          `json:"thumbnail_error,omitempty"`

	MirrorStatus     MirrorStatus `json:"mirror_status"`
	MirrorExternalID *string      `json:"mirror_external_id,omitempty"`
	MirrorDocID      *string      `json:"mirror_doc_id,omitempty"`
	MirrorError      string       `json:"mirror_error,omitempty"`
	SharedWithOwner  bool         `json:"is_shared_with_owner"`

	Category          Category   `json:"category"`
	CategoryUpdatedAt *time.Time `json:"category_updated_at,omitempty"`
	CategoryUpdatedBy *uuid.UUID `json:"category_updated_by,omitempty"`

	IsActive  bool       `json:"is_active"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOriginal reports whether the record is the first upload of its content
// for its owner.
func (f *FileRecord) IsOriginal() bool { return f.DuplicateSequence == 0 }

// FileListFilters narrows List results. The zero value lists all active
// records for the owner, newest first.
type FileListFilters struct {
	Category       *Category
	IncludeDeleted bool
	Limit          *int
	Offset         *int
}

// CategoryStats aggregates active record counts per category for one owner.
type CategoryStats struct {
	ByCategory map[Category]int64 `json:"by_category"`
	Total      int64              `json:"total"`
}

// MirrorResult is the outcome of a successful mirror sync.
type MirrorResult struct {
	ExternalID string
	DocID      string
	Shared     bool
}

// ThumbnailUpdate carries a thumbnail state transition to the repository.
// Key must be non-nil iff Status is ThumbnailStatusCompleted.
type ThumbnailUpdate struct {
	Status   ThumbnailStatus
	Key      *string
	ErrorMsg string
}

// MirrorUpdate carries a mirror state transition to the repository.
// ExternalID/DocID/Shared are persisted only with MirrorStatusMirrored,
// which also clears any prior error.
type MirrorUpdate struct {
	Status     MirrorStatus
	ExternalID *string
	DocID      *string
	Shared     bool
	ErrorMsg   string
}

// ProcessingUpdate carries a text-extraction state transition to the
// repository.
type ProcessingUpdate struct {
	Status   ProcessingStatus
	Text     string
	Preview  string
	ErrorMsg string
}

// BulkCategoryResult reports per-record outcomes of a bulk category update.
// Partial success is expected; failed IDs map to a reason string.
type BulkCategoryResult struct {
	Updated []uuid.UUID          `json:"updated"`
	Failed  map[uuid.UUID]string `json:"failed,omitempty"`
}

// ObjectMeta describes an object as reported by a storage backend.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams carries optional parameters for a storage backend write.
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// Dimensions bounds generated thumbnails.
type Dimensions struct {
	Width  int
	Height int
}

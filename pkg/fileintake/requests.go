package fileintake

import "github.com/google/uuid"

// Request/Response DTOs

// UploadRequest contains parameters for ingesting a new file.
type UploadRequest struct {
	OwnerID      uuid.UUID
	Data         []byte
	DeclaredName string
	DeclaredType string

	// ExtractText requests a text-extraction follow-up task in addition to
	// the always-enqueued thumbnail and mirror tasks.
	ExtractText bool
}

// DeleteRequest contains parameters for deleting a file.
type DeleteRequest struct {
	FileID    uuid.UUID
	ActorID   uuid.UUID
	Permanent bool
}

// RenameRequest contains parameters for renaming a file.
type RenameRequest struct {
	FileID  uuid.UUID
	ActorID uuid.UUID
	NewName string
}

// SetCategoryRequest contains parameters for a single category update.
type SetCategoryRequest struct {
	FileID   uuid.UUID
	ActorID  uuid.UUID
	Category Category
}

// BulkSetCategoryRequest applies one category to many records with per-record
// ownership checks.
type BulkSetCategoryRequest struct {
	FileIDs  []uuid.UUID
	OwnerID  uuid.UUID
	ActorID  uuid.UUID
	Category Category
}

// ListRequest contains parameters for listing an owner's files.
type ListRequest struct {
	OwnerID uuid.UUID
	Filters FileListFilters
}

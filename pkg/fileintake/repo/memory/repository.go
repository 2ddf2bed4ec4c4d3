// Package memory provides an in-memory Repository for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

// Repository implements fileintake.Repository using in-memory maps. All
// methods copy records on the way in and out so callers never share state
// with the store. The single mutex is the serialization point the duplicate
// index relies on.
type Repository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*fileintake.FileRecord
	// "owner:digest:seq" -> record id, the uniqueness constraint behind
	// duplicate sequence assignment.
	bySequence map[string]uuid.UUID
	byKey      map[string]uuid.UUID
}

var _ fileintake.Repository = (*Repository)(nil)

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{
		records:    make(map[uuid.UUID]*fileintake.FileRecord),
		bySequence: make(map[string]uuid.UUID),
		byKey:      make(map[string]uuid.UUID),
	}
}

func sequenceKey(ownerID uuid.UUID, digest string, seq int) string {
	return fmt.Sprintf("%s:%s:%d", ownerID, digest, seq)
}

func (r *Repository) CreateFile(ctx context.Context, record *fileintake.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seqKey := sequenceKey(record.OwnerID, record.ContentDigest, record.DuplicateSequence)
	if _, taken := r.bySequence[seqKey]; taken {
		return fileintake.ErrDuplicateSequenceConflict
	}
	if _, taken := r.byKey[record.PhysicalKey]; taken {
		return fmt.Errorf("physical key already in use: %s", record.PhysicalKey)
	}

	now := time.Now().UTC()
	recordCopy := *record
	if recordCopy.CreatedAt.IsZero() {
		recordCopy.CreatedAt = now
	}
	recordCopy.UpdatedAt = now

	r.records[record.ID] = &recordCopy
	r.bySequence[seqKey] = record.ID
	r.byKey[record.PhysicalKey] = record.ID

	record.CreatedAt = recordCopy.CreatedAt
	record.UpdatedAt = recordCopy.UpdatedAt
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id uuid.UUID, includeDeleted bool) (*fileintake.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, fileintake.ErrFileNotFound
	}
	if !record.IsActive && !includeDeleted {
		return nil, fileintake.ErrFileNotFound
	}
	recordCopy := *record
	return &recordCopy, nil
}

func (r *Repository) ListFiles(ctx context.Context, ownerID uuid.UUID, filters fileintake.FileListFilters) ([]*fileintake.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*fileintake.FileRecord
	for _, record := range r.records {
		if record.OwnerID != ownerID {
			continue
		}
		if !record.IsActive && !filters.IncludeDeleted {
			continue
		}
		if filters.Category != nil && record.Category != *filters.Category {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset != nil {
		if *filters.Offset >= len(result) {
			return nil, nil
		}
		result = result[*filters.Offset:]
	}
	if filters.Limit != nil && *filters.Limit < len(result) {
		result = result[:*filters.Limit]
	}
	return result, nil
}

func (r *Repository) MaxSequenceByOwnerAndDigest(ctx context.Context, ownerID uuid.UUID, digest string) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maxSeq, found := 0, false
	for _, record := range r.records {
		if record.OwnerID == ownerID && record.ContentDigest == digest {
			if !found || record.DuplicateSequence > maxSeq {
				maxSeq = record.DuplicateSequence
			}
			found = true
		}
	}
	return maxSeq, found, nil
}

// GetOriginalByOwnerAndDigest returns the surviving record with the lowest
// sequence. After the sequence-zero record is purged that is the next copy up.
func (r *Repository) GetOriginalByOwnerAndDigest(ctx context.Context, ownerID uuid.UUID, digest string) (*fileintake.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var earliest *fileintake.FileRecord
	for _, record := range r.records {
		if record.OwnerID != ownerID || record.ContentDigest != digest {
			continue
		}
		if earliest == nil || record.DuplicateSequence < earliest.DuplicateSequence {
			earliest = record
		}
	}
	if earliest == nil {
		return nil, fileintake.ErrFileNotFound
	}
	recordCopy := *earliest
	return &recordCopy, nil
}

func (r *Repository) DisplayNameTaken(ctx context.Context, ownerID uuid.UUID, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.OwnerID == ownerID && record.IsActive && strings.EqualFold(record.DisplayName, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) RenameFile(ctx context.Context, id uuid.UUID, displayName string) error {
	return r.mutate(id, true, func(record *fileintake.FileRecord) {
		record.DisplayName = displayName
	})
}

func (r *Repository) SoftDeleteFile(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	return r.mutate(id, false, func(record *fileintake.FileRecord) {
		now := time.Now().UTC()
		record.IsActive = false
		record.DeletedAt = &now
		record.DeletedBy = &actorID
	})
}

func (r *Repository) RestoreFile(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, false, func(record *fileintake.FileRecord) {
		record.IsActive = true
		record.DeletedAt = nil
		record.DeletedBy = nil
	})
}

func (r *Repository) HardDeleteFile(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return fileintake.ErrFileNotFound
	}

	delete(r.bySequence, sequenceKey(record.OwnerID, record.ContentDigest, record.DuplicateSequence))
	delete(r.byKey, record.PhysicalKey)
	delete(r.records, id)
	return nil
}

func (r *Repository) SetCategory(ctx context.Context, id uuid.UUID, actorID uuid.UUID, category fileintake.Category) error {
	return r.mutate(id, true, func(record *fileintake.FileRecord) {
		now := time.Now().UTC()
		record.Category = category
		record.CategoryUpdatedAt = &now
		record.CategoryUpdatedBy = &actorID
	})
}

func (r *Repository) CategoryStats(ctx context.Context, ownerID uuid.UUID) (*fileintake.CategoryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &fileintake.CategoryStats{ByCategory: make(map[fileintake.Category]int64)}
	for _, cat := range fileintake.Categories() {
		stats.ByCategory[cat] = 0
	}
	for _, record := range r.records {
		if record.OwnerID != ownerID || !record.IsActive {
			continue
		}
		stats.ByCategory[record.Category]++
		stats.Total++
	}
	return stats, nil
}

func (r *Repository) UpdateThumbnail(ctx context.Context, id uuid.UUID, update fileintake.ThumbnailUpdate) error {
	return r.mutate(id, false, func(record *fileintake.FileRecord) {
		record.ThumbnailStatus = update.Status
		record.ThumbnailError = update.ErrorMsg
		// The key is present iff generation completed.
		if update.Status == fileintake.ThumbnailStatusCompleted {
			record.ThumbnailKey = update.Key
		} else {
			record.ThumbnailKey = nil
		}
	})
}

func (r *Repository) UpdateMirror(ctx context.Context, id uuid.UUID, update fileintake.MirrorUpdate) error {
	return r.mutate(id, false, func(record *fileintake.FileRecord) {
		record.MirrorStatus = update.Status
		record.MirrorError = update.ErrorMsg
		if update.Status == fileintake.MirrorStatusMirrored {
			record.MirrorExternalID = update.ExternalID
			record.MirrorDocID = update.DocID
			record.SharedWithOwner = update.Shared
		}
	})
}

func (r *Repository) UpdateProcessing(ctx context.Context, id uuid.UUID, update fileintake.ProcessingUpdate) error {
	return r.mutate(id, false, func(record *fileintake.FileRecord) {
		record.ProcessingStatus = update.Status
		record.ProcessingError = update.ErrorMsg
		if update.Status == fileintake.ProcessingStatusCompleted {
			record.ExtractedText = update.Text
			record.TextPreview = update.Preview
		}
	})
}

func (r *Repository) ListByMirrorStatus(ctx context.Context, status fileintake.MirrorStatus, limit int) ([]*fileintake.FileRecord, error) {
	return r.listByStatus(limit, func(record *fileintake.FileRecord) bool {
		return record.MirrorStatus == status
	})
}

func (r *Repository) ListByThumbnailStatus(ctx context.Context, status fileintake.ThumbnailStatus, limit int) ([]*fileintake.FileRecord, error) {
	return r.listByStatus(limit, func(record *fileintake.FileRecord) bool {
		return record.ThumbnailStatus == status
	})
}

func (r *Repository) listByStatus(limit int, match func(*fileintake.FileRecord) bool) ([]*fileintake.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*fileintake.FileRecord
	for _, record := range r.records {
		if !record.IsActive || !match(record) {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// mutate applies fn to the stored record under the write lock.
// activeOnly restricts the mutation to active records.
func (r *Repository) mutate(id uuid.UUID, activeOnly bool, fn func(*fileintake.FileRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return fileintake.ErrFileNotFound
	}
	if activeOnly && !record.IsActive {
		return fileintake.ErrFileNotFound
	}
	fn(record)
	record.UpdatedAt = time.Now().UTC()
	return nil
}

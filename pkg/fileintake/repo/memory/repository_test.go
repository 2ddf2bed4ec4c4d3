package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

func newRecord(ownerID uuid.UUID, digest string, seq int) *fileintake.FileRecord {
	id := uuid.New()
	return &fileintake.FileRecord{
		ID:                id,
		OwnerID:           ownerID,
		DisplayName:       "resume.pdf",
		PhysicalKey:       ownerID.String() + "/" + id.String() + "/resume.pdf",
		SizeBytes:         1024,
		MediaType:         "application/pdf",
		ContentDigest:     digest,
		DuplicateSequence: seq,
		ProcessingStatus:  fileintake.ProcessingStatusPending,
		ThumbnailStatus:   fileintake.ThumbnailStatusPending,
		MirrorStatus:      fileintake.MirrorStatusNotMirrored,
		Category:          fileintake.CategoryActive,
		IsActive:          true,
	}
}

func TestCreateAndGetFile(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	record := newRecord(owner, "digest-a", 0)
	require.NoError(t, repo.CreateFile(ctx, record))
	assert.False(t, record.CreatedAt.IsZero())

	got, err := repo.GetFile(ctx, record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "resume.pdf", got.DisplayName)
	assert.True(t, got.IsOriginal())

	// Mutating the returned copy must not affect the stored record.
	got.DisplayName = "changed"
	again, err := repo.GetFile(ctx, record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "resume.pdf", again.DisplayName)
}

func TestGetFileNotFound(t *testing.T) {
	repo := New()
	_, err := repo.GetFile(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)
}

func TestCreateFileSequenceConflict(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	require.NoError(t, repo.CreateFile(ctx, newRecord(owner, "digest-a", 0)))

	dup := newRecord(owner, "digest-a", 0)
	err := repo.CreateFile(ctx, dup)
	assert.ErrorIs(t, err, fileintake.ErrDuplicateSequenceConflict)

	// Same digest under a different owner is not a conflict.
	require.NoError(t, repo.CreateFile(ctx, newRecord(uuid.New(), "digest-a", 0)))
	// Next sequence under the same owner is not a conflict.
	require.NoError(t, repo.CreateFile(ctx, newRecord(owner, "digest-a", 1)))
}

func TestMaxSequenceAndOriginalByOwnerAndDigest(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	_, found, err := repo.MaxSequenceByOwnerAndDigest(ctx, owner, "digest-a")
	require.NoError(t, err)
	assert.False(t, found)

	original := newRecord(owner, "digest-a", 0)
	require.NoError(t, repo.CreateFile(ctx, original))
	require.NoError(t, repo.CreateFile(ctx, newRecord(owner, "digest-a", 1)))
	require.NoError(t, repo.CreateFile(ctx, newRecord(owner, "digest-b", 0)))

	maxSeq, found, err := repo.MaxSequenceByOwnerAndDigest(ctx, owner, "digest-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, maxSeq)

	got, err := repo.GetOriginalByOwnerAndDigest(ctx, owner, "digest-a")
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.ID)

	_, err = repo.GetOriginalByOwnerAndDigest(ctx, owner, "digest-missing")
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)
}

func TestSequenceSlotsAfterDeletes(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	record := newRecord(owner, "digest-a", 0)
	second := newRecord(owner, "digest-a", 1)
	require.NoError(t, repo.CreateFile(ctx, record))
	require.NoError(t, repo.CreateFile(ctx, second))
	require.NoError(t, repo.SoftDeleteFile(ctx, record.ID, owner))

	// Soft-deleted records still hold bytes, so they still occupy their
	// duplicate sequence.
	maxSeq, found, err := repo.MaxSequenceByOwnerAndDigest(ctx, owner, "digest-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, maxSeq)

	err = repo.CreateFile(ctx, newRecord(owner, "digest-a", 0))
	assert.ErrorIs(t, err, fileintake.ErrDuplicateSequenceConflict)

	// Purging the sequence-zero record frees its slot; the survivor becomes
	// the original for future duplicates.
	require.NoError(t, repo.HardDeleteFile(ctx, record.ID))

	maxSeq, found, err = repo.MaxSequenceByOwnerAndDigest(ctx, owner, "digest-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, maxSeq)

	got, err := repo.GetOriginalByOwnerAndDigest(ctx, owner, "digest-a")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestSoftDeleteRestoreHardDelete(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()
	actor := uuid.New()

	record := newRecord(owner, "digest-a", 0)
	require.NoError(t, repo.CreateFile(ctx, record))

	require.NoError(t, repo.SoftDeleteFile(ctx, record.ID, actor))

	_, err := repo.GetFile(ctx, record.ID, false)
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)

	got, err := repo.GetFile(ctx, record.ID, true)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DeletedAt)
	require.NotNil(t, got.DeletedBy)
	assert.Equal(t, actor, *got.DeletedBy)

	require.NoError(t, repo.RestoreFile(ctx, record.ID))
	got, err = repo.GetFile(ctx, record.ID, false)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.DeletedAt)
	assert.Nil(t, got.DeletedBy)

	require.NoError(t, repo.HardDeleteFile(ctx, record.ID))
	_, err = repo.GetFile(ctx, record.ID, true)
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)

	// Hard delete frees the sequence slot.
	require.NoError(t, repo.CreateFile(ctx, newRecord(owner, "digest-a", 0)))
}

func TestListFilesFilters(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	a := newRecord(owner, "digest-a", 0)
	b := newRecord(owner, "digest-b", 0)
	b.Category = fileintake.CategoryArchived
	c := newRecord(owner, "digest-c", 0)
	require.NoError(t, repo.CreateFile(ctx, a))
	require.NoError(t, repo.CreateFile(ctx, b))
	require.NoError(t, repo.CreateFile(ctx, c))
	require.NoError(t, repo.SoftDeleteFile(ctx, c.ID, owner))

	// Other owner's records never leak in.
	require.NoError(t, repo.CreateFile(ctx, newRecord(uuid.New(), "digest-a", 0)))

	list, err := repo.ListFiles(ctx, owner, fileintake.FileListFilters{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	archived := fileintake.CategoryArchived
	list, err = repo.ListFiles(ctx, owner, fileintake.FileListFilters{Category: &archived})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	list, err = repo.ListFiles(ctx, owner, fileintake.FileListFilters{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	limit := 1
	list, err = repo.ListFiles(ctx, owner, fileintake.FileListFilters{Limit: &limit})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDisplayNameTaken(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	record := newRecord(owner, "digest-a", 0)
	require.NoError(t, repo.CreateFile(ctx, record))

	taken, err := repo.DisplayNameTaken(ctx, owner, "resume.pdf")
	require.NoError(t, err)
	assert.True(t, taken)

	// Case-insensitive.
	taken, err = repo.DisplayNameTaken(ctx, owner, "RESUME.PDF")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.DisplayNameTaken(ctx, owner, "other.pdf")
	require.NoError(t, err)
	assert.False(t, taken)

	// Soft-deleted names are reusable.
	require.NoError(t, repo.SoftDeleteFile(ctx, record.ID, owner))
	taken, err = repo.DisplayNameTaken(ctx, owner, "resume.pdf")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestSetCategoryAndStats(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()
	actor := uuid.New()

	a := newRecord(owner, "digest-a", 0)
	b := newRecord(owner, "digest-b", 0)
	require.NoError(t, repo.CreateFile(ctx, a))
	require.NoError(t, repo.CreateFile(ctx, b))

	require.NoError(t, repo.SetCategory(ctx, a.ID, actor, fileintake.CategoryArchived))

	got, err := repo.GetFile(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Equal(t, fileintake.CategoryArchived, got.Category)
	require.NotNil(t, got.CategoryUpdatedBy)
	assert.Equal(t, actor, *got.CategoryUpdatedBy)
	assert.NotNil(t, got.CategoryUpdatedAt)

	stats, err := repo.CategoryStats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByCategory[fileintake.CategoryActive])
	assert.Equal(t, int64(1), stats.ByCategory[fileintake.CategoryArchived])
	assert.Equal(t, int64(0), stats.ByCategory[fileintake.CategoryDraft])

	// Category changes on soft-deleted records are rejected.
	require.NoError(t, repo.SoftDeleteFile(ctx, b.ID, actor))
	err = repo.SetCategory(ctx, b.ID, actor, fileintake.CategoryDraft)
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)
}

func TestStatusFieldGroupUpdates(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	record := newRecord(owner, "digest-a", 0)
	require.NoError(t, repo.CreateFile(ctx, record))

	key := "thumbnails/" + owner.String() + "/" + record.ID.String() + ".png"
	require.NoError(t, repo.UpdateThumbnail(ctx, record.ID, fileintake.ThumbnailUpdate{
		Status: fileintake.ThumbnailStatusCompleted,
		Key:    &key,
	}))

	extID := "ext-123"
	require.NoError(t, repo.UpdateMirror(ctx, record.ID, fileintake.MirrorUpdate{
		Status:     fileintake.MirrorStatusMirrored,
		ExternalID: &extID,
		Shared:     true,
	}))

	require.NoError(t, repo.UpdateProcessing(ctx, record.ID, fileintake.ProcessingUpdate{
		Status:  fileintake.ProcessingStatusCompleted,
		Text:    "full text",
		Preview: "full text",
	}))

	got, err := repo.GetFile(ctx, record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, fileintake.ThumbnailStatusCompleted, got.ThumbnailStatus)
	require.NotNil(t, got.ThumbnailKey)
	assert.Equal(t, key, *got.ThumbnailKey)
	assert.Equal(t, fileintake.MirrorStatusMirrored, got.MirrorStatus)
	require.NotNil(t, got.MirrorExternalID)
	assert.Equal(t, "ext-123", *got.MirrorExternalID)
	assert.True(t, got.SharedWithOwner)
	assert.Equal(t, fileintake.ProcessingStatusCompleted, got.ProcessingStatus)
	assert.Equal(t, "full text", got.ExtractedText)

	// A non-completed transition clears the thumbnail key.
	require.NoError(t, repo.UpdateThumbnail(ctx, record.ID, fileintake.ThumbnailUpdate{
		Status:   fileintake.ThumbnailStatusFailed,
		ErrorMsg: "render crashed",
	}))
	got, err = repo.GetFile(ctx, record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, fileintake.ThumbnailStatusFailed, got.ThumbnailStatus)
	assert.Nil(t, got.ThumbnailKey)
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	repo := New()
	owner := uuid.New()

	a := newRecord(owner, "digest-a", 0)
	b := newRecord(owner, "digest-b", 0)
	require.NoError(t, repo.CreateFile(ctx, a))
	require.NoError(t, repo.CreateFile(ctx, b))

	require.NoError(t, repo.UpdateMirror(ctx, a.ID, fileintake.MirrorUpdate{
		Status:   fileintake.MirrorStatusMirrorFailed,
		ErrorMsg: "host unavailable",
	}))

	failed, err := repo.ListByMirrorStatus(ctx, fileintake.MirrorStatusMirrorFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].ID)
	assert.Equal(t, "host unavailable", failed[0].MirrorError)

	// A later successful sync clears the recorded error.
	extID := "ext-1"
	require.NoError(t, repo.UpdateMirror(ctx, a.ID, fileintake.MirrorUpdate{
		Status:     fileintake.MirrorStatusMirrored,
		ExternalID: &extID,
	}))
	got, err := repo.GetFile(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Empty(t, got.MirrorError)

	pending, err := repo.ListByThumbnailStatus(ctx, fileintake.ThumbnailStatusPending, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

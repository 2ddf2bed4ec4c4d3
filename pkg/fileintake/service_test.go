package fileintake_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/resumekit/fileintake/pkg/fileintake"
	memoryrepo "github.com/resumekit/fileintake/pkg/fileintake/repo/memory"
	memorystorage "github.com/resumekit/fileintake/pkg/fileintake/storage/memory"
)

func newTestService(t *testing.T, opts ...fileintake.Option) (fileintake.Service, *memorystorage.Backend) {
	t.Helper()

	store := memorystorage.New()
	base := []fileintake.Option{
		fileintake.WithRepository(memoryrepo.New()),
		fileintake.WithBlobStore("memory", store),
	}
	svc, err := fileintake.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, store
}

func uploadText(t *testing.T, svc fileintake.Service, owner uuid.UUID, name, content string) *fileintake.FileRecord {
	t.Helper()
	record, err := svc.Upload(context.Background(), fileintake.UploadRequest{
		OwnerID:      owner,
		Data:         []byte(content),
		DeclaredName: name,
		DeclaredType: "text/plain",
	})
	require.NoError(t, err)
	return record
}

func TestService_New(t *testing.T) {
	t.Run("requires repository", func(t *testing.T) {
		_, err := fileintake.New(fileintake.WithBlobStore("memory", memorystorage.New()))
		assert.Error(t, err)
	})

	t.Run("requires a storage backend", func(t *testing.T) {
		_, err := fileintake.New(fileintake.WithRepository(memoryrepo.New()))
		assert.Error(t, err)
	})

	t.Run("default backend must be registered", func(t *testing.T) {
		_, err := fileintake.New(
			fileintake.WithRepository(memoryrepo.New()),
			fileintake.WithBlobStore("memory", memorystorage.New()),
			fileintake.WithDefaultBackend("s3"),
		)
		assert.Error(t, err)
	})
}

func TestService_Upload(t *testing.T) {
	svc, store := newTestService(t)
	owner := uuid.New()

	record := uploadText(t, svc, owner, "notes.txt", "hello world")

	assert.Equal(t, owner, record.OwnerID)
	assert.Equal(t, "notes.txt", record.DisplayName)
	assert.Equal(t, int64(len("hello world")), record.SizeBytes)
	assert.Equal(t, fileintake.DigestBytes([]byte("hello world")), record.ContentDigest)
	assert.Equal(t, 0, record.DuplicateSequence)
	assert.Nil(t, record.OriginalRecordID)
	assert.True(t, record.IsOriginal())
	assert.Equal(t, fileintake.CategoryActive, record.Category)
	assert.Equal(t, fileintake.ProcessingStatusPending, record.ProcessingStatus)
	assert.Equal(t, fileintake.ThumbnailStatusPending, record.ThumbnailStatus)
	assert.Equal(t, fileintake.MirrorStatusNotMirrored, record.MirrorStatus)
	assert.True(t, record.IsActive)
	assert.Equal(t, 1, store.Len())

	reader, err := svc.Download(context.Background(), record.ID)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestService_Upload_RejectsInvalid(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.Upload(context.Background(), fileintake.UploadRequest{
		OwnerID:      uuid.New(),
		Data:         []byte("MZ binary"),
		DeclaredName: "tool.exe",
	})
	var verr *fileintake.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, fileintake.ReasonUnsupportedType, verr.Reason)

	// Rejected uploads must not leave bytes behind.
	assert.Equal(t, 0, store.Len())
}

func TestService_Upload_DuplicateSequencing(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	first := uploadText(t, svc, owner, "resume.txt", "same content")
	second := uploadText(t, svc, owner, "resume.txt", "same content")

	assert.Equal(t, 0, first.DuplicateSequence)
	assert.Equal(t, 1, second.DuplicateSequence)
	require.NotNil(t, second.OriginalRecordID)
	assert.Equal(t, first.ID, *second.OriginalRecordID)
	assert.Equal(t, "resume (1).txt", second.DisplayName)
	assert.NotEqual(t, first.PhysicalKey, second.PhysicalKey)

	// Different content restarts the sequence.
	other := uploadText(t, svc, owner, "resume.txt", "different content")
	assert.Equal(t, 0, other.DuplicateSequence)
}

func TestService_Upload_DuplicateAcrossOwners(t *testing.T) {
	svc, _ := newTestService(t)

	a := uploadText(t, svc, uuid.New(), "resume.txt", "shared content")
	b := uploadText(t, svc, uuid.New(), "resume.txt", "shared content")

	// Duplicate detection is scoped per owner.
	assert.Equal(t, 0, a.DuplicateSequence)
	assert.Equal(t, 0, b.DuplicateSequence)
}

func TestService_Upload_ConcurrentDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	const n = 8
	records := make([]*fileintake.FileRecord, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			record, err := svc.Upload(context.Background(), fileintake.UploadRequest{
				OwnerID:      owner,
				Data:         []byte("contended content"),
				DeclaredName: "resume.txt",
				DeclaredType: "text/plain",
			})
			records[i] = record
			return err
		})
	}
	require.NoError(t, g.Wait())

	// Sequences must come out dense and gapless: 0..n-1 with no repeats.
	seqs := make([]int, n)
	names := make(map[string]bool, n)
	for i, record := range records {
		seqs[i] = record.DuplicateSequence
		names[record.DisplayName] = true
	}
	sort.Ints(seqs)
	for i := 0; i < n; i++ {
		assert.Equal(t, i, seqs[i])
	}
	assert.Len(t, names, n, "display names must be unique")
}

func TestService_Upload_SoftDeletedHoldsSequence(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	first := uploadText(t, svc, owner, "resume.txt", "content")
	require.NoError(t, svc.Delete(context.Background(), fileintake.DeleteRequest{
		FileID: first.ID, ActorID: owner,
	}))

	// The soft-deleted record still holds bytes, so its slot stays taken.
	second := uploadText(t, svc, owner, "resume.txt", "content")
	assert.Equal(t, 1, second.DuplicateSequence)
}

func TestService_Upload_AfterOriginalPurged(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	first := uploadText(t, svc, owner, "resume.txt", "same content")
	second := uploadText(t, svc, owner, "resume.txt", "same content")
	require.Equal(t, 0, first.DuplicateSequence)
	require.Equal(t, 1, second.DuplicateSequence)

	require.NoError(t, svc.Delete(ctx, fileintake.DeleteRequest{FileID: first.ID, ActorID: owner}))
	require.NoError(t, svc.Purge(ctx, first.ID))

	// The freed slot is not reused; the survivor becomes the original for
	// the new copy.
	third := uploadText(t, svc, owner, "resume.txt", "same content")
	assert.Equal(t, 2, third.DuplicateSequence)
	require.NotNil(t, third.OriginalRecordID)
	assert.Equal(t, second.ID, *third.OriginalRecordID)
}

func TestService_Rename(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	record := uploadText(t, svc, owner, "draft.txt", "a")
	uploadText(t, svc, owner, "final.txt", "b")

	t.Run("success", func(t *testing.T) {
		renamed, err := svc.Rename(ctx, fileintake.RenameRequest{
			FileID: record.ID, ActorID: owner, NewName: "cover letter.txt",
		})
		require.NoError(t, err)
		assert.Equal(t, "cover letter.txt", renamed.DisplayName)

		got, err := svc.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "cover letter.txt", got.DisplayName)
	})

	t.Run("collision rejected", func(t *testing.T) {
		_, err := svc.Rename(ctx, fileintake.RenameRequest{
			FileID: record.ID, ActorID: owner, NewName: "Final.txt",
		})
		var verr *fileintake.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, fileintake.ReasonBadName, verr.Reason)
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		_, err := svc.Rename(ctx, fileintake.RenameRequest{
			FileID: record.ID, ActorID: owner, NewName: "cover letter.txt",
		})
		require.NoError(t, err)
	})

	t.Run("empty after sanitization rejected", func(t *testing.T) {
		_, err := svc.Rename(ctx, fileintake.RenameRequest{
			FileID: record.ID, ActorID: owner, NewName: "..",
		})
		var verr *fileintake.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestService_DeleteRestorePurge(t *testing.T) {
	svc, store := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	record := uploadText(t, svc, owner, "resume.txt", "content")

	require.NoError(t, svc.Delete(ctx, fileintake.DeleteRequest{FileID: record.ID, ActorID: owner}))

	// Soft-deleted: hidden from normal reads, visible to admin reads, bytes kept.
	_, err := svc.Get(ctx, record.ID)
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)
	deleted, err := svc.AdminGet(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, deleted.IsActive)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, 1, store.Len())

	// Deleting again is idempotent.
	require.NoError(t, svc.Delete(ctx, fileintake.DeleteRequest{FileID: record.ID, ActorID: owner}))

	require.NoError(t, svc.Restore(ctx, record.ID, owner))
	restored, err := svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
	assert.Nil(t, restored.DeletedAt)

	// Permanent delete removes bytes and the record.
	require.NoError(t, svc.Delete(ctx, fileintake.DeleteRequest{
		FileID: record.ID, ActorID: owner, Permanent: true,
	}))
	assert.Equal(t, 0, store.Len())
	_, err = svc.AdminGet(ctx, record.ID)
	assert.ErrorIs(t, err, fileintake.ErrFileNotFound)
}

// failingDeleteStore wraps a backend and refuses deletes.
type failingDeleteStore struct {
	fileintake.BlobStore
}

func (f *failingDeleteStore) Delete(ctx context.Context, objectKey string) error {
	return fmt.Errorf("backend unavailable")
}

func TestService_Purge_FailureLeavesRecoverableRecord(t *testing.T) {
	store := &failingDeleteStore{BlobStore: memorystorage.New()}
	svc, err := fileintake.New(
		fileintake.WithRepository(memoryrepo.New()),
		fileintake.WithBlobStore("memory", store),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	owner := uuid.New()
	ctx := context.Background()
	record := uploadText(t, svc, owner, "resume.txt", "content")

	err = svc.Delete(ctx, fileintake.DeleteRequest{FileID: record.ID, ActorID: owner, Permanent: true})
	require.Error(t, err)
	var serr *fileintake.StorageError
	assert.ErrorAs(t, err, &serr)

	// The row survives soft-deleted so the purge can be retried.
	got, err := svc.AdminGet(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	a := uploadText(t, svc, owner, "a.txt", "aaa")
	b := uploadText(t, svc, owner, "b.txt", "bbb")
	uploadText(t, svc, uuid.New(), "other.txt", "zzz")

	require.NoError(t, svc.SetCategory(ctx, fileintake.SetCategoryRequest{
		FileID: b.ID, ActorID: owner, Category: fileintake.CategoryArchived,
	}))

	all, err := svc.List(ctx, fileintake.ListRequest{OwnerID: owner})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	archived := fileintake.CategoryArchived
	got, err := svc.List(ctx, fileintake.ListRequest{
		OwnerID: owner,
		Filters: fileintake.FileListFilters{Category: &archived},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	// Soft-deleted records drop out of default listings.
	require.NoError(t, svc.Delete(ctx, fileintake.DeleteRequest{FileID: a.ID, ActorID: owner}))
	all, err = svc.List(ctx, fileintake.ListRequest{OwnerID: owner})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	withDeleted, err := svc.List(ctx, fileintake.ListRequest{
		OwnerID: owner,
		Filters: fileintake.FileListFilters{IncludeDeleted: true},
	})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 2)
}

func TestService_Categories(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()
	ctx := context.Background()

	a := uploadText(t, svc, owner, "a.txt", "aaa")
	b := uploadText(t, svc, owner, "b.txt", "bbb")
	c := uploadText(t, svc, owner, "c.txt", "ccc")

	t.Run("invalid category rejected", func(t *testing.T) {
		err := svc.SetCategory(ctx, fileintake.SetCategoryRequest{
			FileID: a.ID, ActorID: owner, Category: "favorites",
		})
		assert.ErrorIs(t, err, fileintake.ErrInvalidCategory)
	})

	t.Run("bulk with foreign id", func(t *testing.T) {
		foreign := uploadText(t, svc, uuid.New(), "foreign.txt", "xxx")

		result, err := svc.BulkSetCategory(ctx, fileintake.BulkSetCategoryRequest{
			FileIDs:  []uuid.UUID{a.ID, b.ID, foreign.ID},
			OwnerID:  owner,
			ActorID:  owner,
			Category: fileintake.CategoryArchived,
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, result.Updated)
		assert.Contains(t, result.Failed, foreign.ID)

		// The foreign record is untouched.
		got, err := svc.Get(ctx, foreign.ID)
		require.NoError(t, err)
		assert.Equal(t, fileintake.CategoryActive, got.Category)
	})

	t.Run("stats", func(t *testing.T) {
		require.NoError(t, svc.SetCategory(ctx, fileintake.SetCategoryRequest{
			FileID: c.ID, ActorID: owner, Category: fileintake.CategoryDraft,
		}))

		stats, err := svc.CategoryStats(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Total)
		assert.Equal(t, int64(2), stats.ByCategory[fileintake.CategoryArchived])
		assert.Equal(t, int64(1), stats.ByCategory[fileintake.CategoryDraft])
		assert.Equal(t, int64(0), stats.ByCategory[fileintake.CategoryActive])
	})
}

func TestService_DownloadThumbnail_NotReady(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	record := uploadText(t, svc, owner, "resume.txt", "content")
	_, err := svc.DownloadThumbnail(context.Background(), record.ID)
	assert.ErrorIs(t, err, fileintake.ErrObjectNotFound)
}

func TestService_GetBackend(t *testing.T) {
	svc, store := newTestService(t)

	got, err := svc.GetBackend("memory")
	require.NoError(t, err)
	assert.Equal(t, fileintake.BlobStore(store), got)

	_, err = svc.GetBackend("missing")
	assert.ErrorIs(t, err, fileintake.ErrStorageBackendNotFound)
}

package fileintake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/resumekit/fileintake/pkg/fileintake/objectkey"
	"github.com/resumekit/fileintake/pkg/fileintake/tasks"
)

const (
	// maxCreateAttempts bounds the duplicate-sequence retry loop. Each
	// retry re-resolves under the keyed lock, so more than a couple of
	// attempts means something other than a writer race is wrong.
	maxCreateAttempts = 3

	defaultThumbnailTimeout = 30 * time.Second

	// textPreviewLimit caps the preview stored alongside extracted text.
	textPreviewLimit = 500
)

// service implements the Service interface
type service struct {
	repository       Repository
	blobStores       map[string]BlobStore
	defaultBackend   string
	thumbnailBackend string

	validator   *Validator
	keygen      objectkey.Generator
	thumbnailer Thumbnailer
	extractor   TextExtractor

	host          DocumentHost
	hostProvider  string
	shareEmail    func(ctx context.Context, ownerID uuid.UUID) (string, error)
	convertNative bool

	runner           TaskRunner
	ownedRunner      *tasks.Runner
	thumbnailDims    Dimensions
	thumbnailTimeout time.Duration

	uploadLocks *keyedMutex
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a storage backend. The first registered backend becomes
// the default unless WithDefaultBackend overrides it.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.defaultBackend == "" {
			s.defaultBackend = name
		}
	}
}

// WithDefaultBackend selects the backend primary bytes are written to.
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithThumbnailBackend selects a separate backend for thumbnail bytes.
// Defaults to the primary backend.
func WithThumbnailBackend(name string) Option {
	return func(s *service) {
		s.thumbnailBackend = name
	}
}

// WithValidationPolicy configures the upload validator.
func WithValidationPolicy(policy ValidationPolicy) Option {
	return func(s *service) {
		s.validator = NewValidator(policy)
	}
}

// WithKeyGenerator sets the physical key generation strategy.
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keygen = gen
	}
}

// WithThumbnailer sets the thumbnail generator.
func WithThumbnailer(t Thumbnailer) Option {
	return func(s *service) {
		s.thumbnailer = t
	}
}

// WithThumbnailOptions bounds generated thumbnails and the generation timeout.
func WithThumbnailOptions(dims Dimensions, timeout time.Duration) Option {
	return func(s *service) {
		s.thumbnailDims = dims
		if timeout > 0 {
			s.thumbnailTimeout = timeout
		}
	}
}

// WithTextExtractor sets the text extraction collaborator.
func WithTextExtractor(e TextExtractor) Option {
	return func(s *service) {
		s.extractor = e
	}
}

// WithDocumentHost wires the external document host mirror target.
// The provider name shows up in MirrorError and logs.
func WithDocumentHost(provider string, host DocumentHost) Option {
	return func(s *service) {
		s.hostProvider = provider
		s.host = host
	}
}

// WithMirrorSharing supplies the resolver mapping an owner id to the e-mail
// address granted edit access on the mirrored copy. Without it, mirrored
// copies stay unshared.
func WithMirrorSharing(resolve func(ctx context.Context, ownerID uuid.UUID) (string, error)) Option {
	return func(s *service) {
		s.shareEmail = resolve
	}
}

// WithMirrorConversion enables converting mirrored copies to the provider's
// native editable document format.
func WithMirrorConversion(enabled bool) Option {
	return func(s *service) {
		s.convertNative = enabled
	}
}

var _ TaskRunner = (*tasks.Runner)(nil)

// WithTaskRunner sets the background runner for side tasks. Without it the
// service owns a small internal runner.
func WithTaskRunner(r TaskRunner) Option {
	return func(s *service) {
		s.runner = r
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:       make(map[string]BlobStore),
		uploadLocks:      newKeyedMutex(),
		thumbnailDims:    Dimensions{Width: 256, Height: 256},
		thumbnailTimeout: defaultThumbnailTimeout,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if len(s.blobStores) == 0 {
		return nil, fmt.Errorf("at least one storage backend is required")
	}
	if _, ok := s.blobStores[s.defaultBackend]; !ok {
		return nil, fmt.Errorf("default storage backend %q is not registered", s.defaultBackend)
	}
	if s.thumbnailBackend == "" {
		s.thumbnailBackend = s.defaultBackend
	}
	if _, ok := s.blobStores[s.thumbnailBackend]; !ok {
		return nil, fmt.Errorf("thumbnail storage backend %q is not registered", s.thumbnailBackend)
	}
	if s.validator == nil {
		s.validator = NewValidator(ValidationPolicy{SniffContent: true})
	}
	if s.keygen == nil {
		s.keygen = objectkey.NewOwnerTreeGenerator()
	}
	if s.runner == nil {
		s.ownedRunner = tasks.NewRunner(tasks.Options{MaxConcurrent: 4})
		s.runner = s.ownedRunner
	}

	return s, nil
}

// Close stops the internally owned task runner, waiting for in-flight side
// tasks. A no-op when the runner was injected.
func (s *service) Close() {
	if s.ownedRunner != nil {
		s.ownedRunner.Close()
	}
}

// Upload ingests a new file: validate, hash, resolve the duplicate sequence
// under the per-(owner, digest) guard, store bytes, create the record, then
// enqueue side tasks. Storage success is the commit point.
func (s *service) Upload(ctx context.Context, req UploadRequest) (*FileRecord, error) {
	validated, err := s.validator.Validate(req.Data, req.DeclaredName, req.DeclaredType)
	if err != nil {
		return nil, err
	}

	digest := DigestBytes(req.Data)

	lockKey := req.OwnerID.String() + ":" + digest
	s.uploadLocks.Lock(lockKey)
	defer s.uploadLocks.Unlock(lockKey)

	store := s.blobStores[s.defaultBackend]

	var record *FileRecord
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		resolution, err := resolveDuplicate(ctx, s.repository, req.OwnerID, digest, validated.DisplayName)
		if err != nil {
			return nil, &FileError{Op: "resolve_duplicate", Err: err}
		}

		now := time.Now().UTC()
		id := uuid.New()
		physicalKey := s.keygen.GenerateKey(req.OwnerID, id, resolution.DisplayName)

		if err := store.UploadWithParams(ctx, bytes.NewReader(req.Data), UploadParams{
			ObjectKey: physicalKey,
			MimeType:  validated.MediaType,
		}); err != nil {
			return nil, &StorageError{Backend: s.defaultBackend, Key: physicalKey, Op: "upload", Err: err}
		}

		record = &FileRecord{
			ID:                id,
			OwnerID:           req.OwnerID,
			DisplayName:       resolution.DisplayName,
			PhysicalKey:       physicalKey,
			SizeBytes:         validated.SizeBytes,
			MediaType:         validated.MediaType,
			ContentDigest:     digest,
			DuplicateSequence: resolution.Sequence,
			OriginalRecordID:  resolution.OriginalRecordID,
			ProcessingStatus:  ProcessingStatusPending,
			ThumbnailStatus:   ThumbnailStatusPending,
			MirrorStatus:      MirrorStatusNotMirrored,
			Category:          CategoryActive,
			IsActive:          true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		err = s.repository.CreateFile(ctx, record)
		if err == nil {
			break
		}

		// The record row never made it in; the stored bytes are orphans
		// either way, remove them before deciding how to proceed.
		if delErr := store.Delete(ctx, physicalKey); delErr != nil {
			slog.Warn("failed to remove orphaned bytes after create failure",
				"key", physicalKey, "error", delErr)
		}

		if errors.Is(err, ErrDuplicateSequenceConflict) && attempt < maxCreateAttempts-1 {
			slog.Info("duplicate sequence conflict, re-resolving",
				"owner_id", req.OwnerID, "digest", digest, "attempt", attempt+1)
			continue
		}
		return nil, &FileError{FileID: id, Op: "create", Err: err}
	}

	slog.Info("file stored",
		"file_id", record.ID, "owner_id", record.OwnerID,
		"sequence", record.DuplicateSequence, "size", record.SizeBytes)

	s.enqueueSideTasks(record, req.ExtractText)

	return record, nil
}

func (s *service) enqueueSideTasks(record *FileRecord, extract bool) {
	id := record.ID
	if s.thumbnailer != nil {
		s.runner.Submit("thumbnail", id.String(), func(ctx context.Context) error {
			return s.GenerateThumbnail(ctx, id)
		})
	}
	if s.host != nil {
		s.runner.Submit("mirror", id.String(), func(ctx context.Context) error {
			return s.SyncMirror(ctx, id)
		})
	}
	if extract && s.extractor != nil {
		s.runner.Submit("extract", id.String(), func(ctx context.Context) error {
			return s.ExtractText(ctx, id)
		})
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*FileRecord, error) {
	return s.repository.GetFile(ctx, id, false)
}

func (s *service) AdminGet(ctx context.Context, id uuid.UUID) (*FileRecord, error) {
	return s.repository.GetFile(ctx, id, true)
}

func (s *service) List(ctx context.Context, req ListRequest) ([]*FileRecord, error) {
	return s.repository.ListFiles(ctx, req.OwnerID, req.Filters)
}

func (s *service) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	return s.download(ctx, id, false)
}

// AdminDownload retrieves bytes for a record regardless of soft deletion.
func (s *service) AdminDownload(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	return s.download(ctx, id, true)
}

func (s *service) download(ctx context.Context, id uuid.UUID, includeDeleted bool) (io.ReadCloser, error) {
	record, err := s.repository.GetFile(ctx, id, includeDeleted)
	if err != nil {
		return nil, &FileError{FileID: id, Op: "download", Err: err}
	}

	reader, err := s.blobStores[s.defaultBackend].Download(ctx, record.PhysicalKey)
	if err != nil {
		return nil, &StorageError{Backend: s.defaultBackend, Key: record.PhysicalKey, Op: "download", Err: err}
	}
	return reader, nil
}

func (s *service) DownloadThumbnail(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	record, err := s.repository.GetFile(ctx, id, false)
	if err != nil {
		return nil, &FileError{FileID: id, Op: "download_thumbnail", Err: err}
	}
	if record.ThumbnailStatus != ThumbnailStatusCompleted || record.ThumbnailKey == nil {
		return nil, &FileError{FileID: id, Op: "download_thumbnail", Err: ErrObjectNotFound}
	}

	reader, err := s.blobStores[s.thumbnailBackend].Download(ctx, *record.ThumbnailKey)
	if err != nil {
		return nil, &StorageError{Backend: s.thumbnailBackend, Key: *record.ThumbnailKey, Op: "download", Err: err}
	}
	return reader, nil
}

// Rename updates the display name after validating and checking for
// collisions within the owner's namespace.
func (s *service) Rename(ctx context.Context, req RenameRequest) (*FileRecord, error) {
	record, err := s.repository.GetFile(ctx, req.FileID, false)
	if err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "rename", Err: err}
	}

	name := SanitizeDisplayName(req.NewName)
	if name == "" {
		return nil, &ValidationError{Reason: ReasonBadName, Detail: "new name is empty after sanitization"}
	}
	if name == record.DisplayName {
		return record, nil
	}

	taken, err := s.repository.DisplayNameTaken(ctx, record.OwnerID, name)
	if err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "rename", Err: err}
	}
	if taken {
		return nil, &ValidationError{Reason: ReasonBadName, Detail: fmt.Sprintf("name %q is already in use", name)}
	}

	if err := s.repository.RenameFile(ctx, req.FileID, name); err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "rename", Err: err}
	}
	record.DisplayName = name
	return record, nil
}

// Delete soft-deletes by default. With Permanent set it soft-deletes first
// and then purges, so a failed purge still leaves a recoverable record.
func (s *service) Delete(ctx context.Context, req DeleteRequest) error {
	record, err := s.repository.GetFile(ctx, req.FileID, true)
	if err != nil {
		return &FileError{FileID: req.FileID, Op: "delete", Err: err}
	}

	if record.IsActive {
		if err := s.repository.SoftDeleteFile(ctx, req.FileID, req.ActorID); err != nil {
			return &FileError{FileID: req.FileID, Op: "delete", Err: err}
		}
		slog.Info("file soft-deleted", "file_id", req.FileID, "actor_id", req.ActorID)
	}

	if !req.Permanent {
		return nil
	}
	return s.Purge(ctx, req.FileID)
}

func (s *service) Restore(ctx context.Context, id, actorID uuid.UUID) error {
	record, err := s.repository.GetFile(ctx, id, true)
	if err != nil {
		return &FileError{FileID: id, Op: "restore", Err: err}
	}
	if record.IsActive {
		return nil
	}
	if err := s.repository.RestoreFile(ctx, id); err != nil {
		return &FileError{FileID: id, Op: "restore", Err: err}
	}
	slog.Info("file restored", "file_id", id, "actor_id", actorID)
	return nil
}

// Purge hard-deletes: thumbnail bytes, then primary bytes, then the row. A
// failure at any step leaves the record soft-deleted rather than partially
// purged; absent blobs count as already gone.
func (s *service) Purge(ctx context.Context, id uuid.UUID) error {
	record, err := s.repository.GetFile(ctx, id, true)
	if err != nil {
		return &FileError{FileID: id, Op: "purge", Err: err}
	}

	// The row must be recoverable if a storage delete fails below.
	if record.IsActive {
		if err := s.repository.SoftDeleteFile(ctx, id, record.OwnerID); err != nil {
			return &FileError{FileID: id, Op: "purge", Err: err}
		}
	}

	if record.ThumbnailKey != nil {
		err := s.blobStores[s.thumbnailBackend].Delete(ctx, *record.ThumbnailKey)
		if err != nil && !errors.Is(err, ErrObjectNotFound) {
			return &StorageError{Backend: s.thumbnailBackend, Key: *record.ThumbnailKey, Op: "delete", Err: err}
		}
	}

	err = s.blobStores[s.defaultBackend].Delete(ctx, record.PhysicalKey)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return &StorageError{Backend: s.defaultBackend, Key: record.PhysicalKey, Op: "delete", Err: err}
	}

	if err := s.repository.HardDeleteFile(ctx, id); err != nil {
		return &FileError{FileID: id, Op: "purge", Err: err}
	}

	slog.Info("file purged", "file_id", id)
	return nil
}

// Category operations

func (s *service) SetCategory(ctx context.Context, req SetCategoryRequest) error {
	if !req.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}
	if err := s.repository.SetCategory(ctx, req.FileID, req.ActorID, req.Category); err != nil {
		return &FileError{FileID: req.FileID, Op: "set_category", Err: err}
	}
	return nil
}

// BulkSetCategory applies the category per record with ownership checks.
// Partial success is reported per id, not rolled back.
func (s *service) BulkSetCategory(ctx context.Context, req BulkSetCategoryRequest) (*BulkCategoryResult, error) {
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}

	result := &BulkCategoryResult{Failed: make(map[uuid.UUID]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, fileID := range req.FileIDs {
		id := fileID
		g.Go(func() error {
			err := s.setCategoryOwned(gctx, id, req.OwnerID, req.ActorID, req.Category)

			mu.Lock()
			if err != nil {
				result.Failed[id] = err.Error()
			} else {
				result.Updated = append(result.Updated, id)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) setCategoryOwned(ctx context.Context, id, ownerID, actorID uuid.UUID, category Category) error {
	record, err := s.repository.GetFile(ctx, id, false)
	if err != nil {
		return err
	}
	if record.OwnerID != ownerID {
		return ErrFileNotFound
	}
	return s.repository.SetCategory(ctx, id, actorID, category)
}

func (s *service) CategoryStats(ctx context.Context, ownerID uuid.UUID) (*CategoryStats, error) {
	return s.repository.CategoryStats(ctx, ownerID)
}

// Storage backend operations

func (s *service) RegisterBackend(name string, backend BlobStore) {
	s.blobStores[name] = backend
}

func (s *service) GetBackend(name string) (BlobStore, error) {
	backend, exists := s.blobStores[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return backend, nil
}

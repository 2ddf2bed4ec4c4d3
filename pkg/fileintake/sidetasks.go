package fileintake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Side-task handlers. Each one operates on exactly one record, writes only
// its own status field group, and is safe to re-run: re-running against a
// finished record either regenerates deterministically (thumbnail) or
// verifies and returns (mirror). Soft deletion does not cancel in-flight
// tasks; listing paths never surface inactive records regardless of what
// these write.

// GenerateThumbnail derives the preview image for a record. Generation
// failures are recorded on the record and never returned as task errors;
// only infrastructure failures (repository, storage) propagate for retry.
func (s *service) GenerateThumbnail(ctx context.Context, id uuid.UUID) error {
	if s.thumbnailer == nil {
		return nil
	}

	record, err := s.repository.GetFile(ctx, id, true)
	if err != nil {
		return &FileError{FileID: id, Op: "thumbnail", Err: err}
	}

	if !s.thumbnailer.Supports(record.MediaType) {
		return s.repository.UpdateThumbnail(ctx, id, ThumbnailUpdate{Status: ThumbnailStatusUnavailable})
	}

	if err := s.repository.UpdateThumbnail(ctx, id, ThumbnailUpdate{Status: ThumbnailStatusGenerating}); err != nil {
		return &FileError{FileID: id, Op: "thumbnail", Err: err}
	}

	src, err := s.readAll(ctx, s.defaultBackend, record.PhysicalKey)
	if err != nil {
		return s.failThumbnail(ctx, id, err)
	}

	img, err := s.generateBounded(ctx, src, record.MediaType)
	if err != nil {
		genErr := &GenerationError{FileID: id, Err: err}
		slog.Warn("thumbnail generation failed", "file_id", id, "error", err)
		return s.failThumbnail(ctx, id, genErr)
	}

	// Deterministic key: regeneration overwrites instead of orphaning.
	key := s.keygen.ThumbnailKey(record.OwnerID, record.ID, "png")
	if err := s.blobStores[s.thumbnailBackend].UploadWithParams(ctx, bytes.NewReader(img), UploadParams{
		ObjectKey: key,
		MimeType:  "image/png",
	}); err != nil {
		return s.failThumbnail(ctx, id, err)
	}

	if err := s.repository.UpdateThumbnail(ctx, id, ThumbnailUpdate{
		Status: ThumbnailStatusCompleted,
		Key:    &key,
	}); err != nil {
		return &FileError{FileID: id, Op: "thumbnail", Err: err}
	}

	slog.Info("thumbnail generated", "file_id", id, "key", key)
	return nil
}

// generateBounded runs the generator under the configured timeout,
// converting a hang into a failure.
func (s *service) generateBounded(ctx context.Context, src []byte, mediaType string) ([]byte, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.thumbnailTimeout)
	defer cancel()

	type genResult struct {
		data []byte
		err  error
	}
	done := make(chan genResult, 1)
	go func() {
		data, err := s.thumbnailer.Generate(genCtx, src, mediaType, s.thumbnailDims)
		done <- genResult{data: data, err: err}
	}()

	select {
	case <-genCtx.Done():
		return nil, genCtx.Err()
	case r := <-done:
		return r.data, r.err
	}
}

func (s *service) failThumbnail(ctx context.Context, id uuid.UUID, cause error) error {
	if err := s.repository.UpdateThumbnail(ctx, id, ThumbnailUpdate{
		Status:   ThumbnailStatusFailed,
		ErrorMsg: cause.Error(),
	}); err != nil {
		return &FileError{FileID: id, Op: "thumbnail", Err: err}
	}
	// Generation failure is terminal state, not a task error.
	return nil
}

// SyncMirror pushes the record's bytes to the external document host.
// Re-invoking against an already-mirrored record verifies the external copy
// instead of duplicating it. Returns the MirrorError on failure so the task
// runner can back off and retry; the record is left mirror_failed between
// attempts.
func (s *service) SyncMirror(ctx context.Context, id uuid.UUID) error {
	if s.host == nil {
		return ErrMirrorNotConfigured
	}

	record, err := s.repository.GetFile(ctx, id, true)
	if err != nil {
		return &FileError{FileID: id, Op: "mirror", Err: err}
	}

	if record.MirrorStatus == MirrorStatusMirrored && record.MirrorExternalID != nil {
		ok, err := s.host.Exists(ctx, *record.MirrorExternalID)
		if err != nil {
			return &MirrorError{Provider: s.hostProvider, Op: "verify", Retryable: true, Err: err}
		}
		if ok {
			slog.Info("mirror already present, verified", "file_id", id, "external_id", *record.MirrorExternalID)
			return nil
		}
		// External copy vanished; fall through and re-mirror.
	}

	if err := s.repository.UpdateMirror(ctx, id, MirrorUpdate{Status: MirrorStatusMirroring}); err != nil {
		return &FileError{FileID: id, Op: "mirror", Err: err}
	}

	result, merr := s.mirrorOnce(ctx, record)
	if merr != nil {
		if err := s.repository.UpdateMirror(ctx, id, MirrorUpdate{
			Status:   MirrorStatusMirrorFailed,
			ErrorMsg: merr.Error(),
		}); err != nil {
			return &FileError{FileID: id, Op: "mirror", Err: err}
		}
		slog.Warn("mirror sync failed", "file_id", id, "error", merr)
		return merr
	}

	update := MirrorUpdate{
		Status:     MirrorStatusMirrored,
		ExternalID: &result.ExternalID,
		Shared:     result.Shared,
	}
	if result.DocID != "" {
		update.DocID = &result.DocID
	}
	if err := s.repository.UpdateMirror(ctx, id, update); err != nil {
		return &FileError{FileID: id, Op: "mirror", Err: err}
	}

	slog.Info("mirror sync completed",
		"file_id", id, "external_id", result.ExternalID, "shared", result.Shared)
	return nil
}

func (s *service) mirrorOnce(ctx context.Context, record *FileRecord) (*MirrorResult, error) {
	src, err := s.readAll(ctx, s.defaultBackend, record.PhysicalKey)
	if err != nil {
		return nil, &MirrorError{Provider: s.hostProvider, Op: "read_source", Retryable: true, Err: err}
	}

	externalID, err := s.host.Upload(ctx, record.DisplayName, record.MediaType, bytes.NewReader(src))
	if err != nil {
		return nil, asMirrorError(s.hostProvider, "upload", err)
	}

	result := &MirrorResult{ExternalID: externalID}

	if s.convertNative {
		docID, err := s.host.ConvertToNative(ctx, externalID)
		if err != nil {
			return nil, asMirrorError(s.hostProvider, "convert", err)
		}
		result.DocID = docID
	}

	if s.shareEmail != nil {
		email, err := s.shareEmail(ctx, record.OwnerID)
		if err != nil {
			return nil, asMirrorError(s.hostProvider, "resolve_share_email", err)
		}
		if email != "" {
			if err := s.host.Share(ctx, externalID, email); err != nil {
				return nil, asMirrorError(s.hostProvider, "share", err)
			}
			result.Shared = true
		}
	}

	return result, nil
}

func asMirrorError(provider, op string, err error) *MirrorError {
	var me *MirrorError
	if errors.As(err, &me) {
		return me
	}
	return &MirrorError{Provider: provider, Op: op, Retryable: true, Err: err}
}

// ExtractText drives the processing status machine: the actual conversion is
// the extractor collaborator's job, this records outcome and text preview.
func (s *service) ExtractText(ctx context.Context, id uuid.UUID) error {
	if s.extractor == nil {
		return nil
	}

	record, err := s.repository.GetFile(ctx, id, true)
	if err != nil {
		return &FileError{FileID: id, Op: "extract", Err: err}
	}

	if err := s.repository.UpdateProcessing(ctx, id, ProcessingUpdate{Status: ProcessingStatusProcessing}); err != nil {
		return &FileError{FileID: id, Op: "extract", Err: err}
	}

	src, err := s.readAll(ctx, s.defaultBackend, record.PhysicalKey)
	if err != nil {
		return s.failProcessing(ctx, id, err)
	}

	text, err := s.extractor.Extract(ctx, src, record.MediaType)
	if err != nil {
		slog.Warn("text extraction failed", "file_id", id, "error", err)
		return s.failProcessing(ctx, id, err)
	}

	if err := s.repository.UpdateProcessing(ctx, id, ProcessingUpdate{
		Status:  ProcessingStatusCompleted,
		Text:    text,
		Preview: previewOf(text),
	}); err != nil {
		return &FileError{FileID: id, Op: "extract", Err: err}
	}
	return nil
}

func (s *service) failProcessing(ctx context.Context, id uuid.UUID, cause error) error {
	if err := s.repository.UpdateProcessing(ctx, id, ProcessingUpdate{
		Status:   ProcessingStatusFailed,
		ErrorMsg: cause.Error(),
	}); err != nil {
		return &FileError{FileID: id, Op: "extract", Err: err}
	}
	return nil
}

func previewOf(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= textPreviewLimit {
		return text
	}
	// Cut on a rune boundary so the preview stays valid UTF-8.
	cut := textPreviewLimit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// ResweepFailed re-enqueues side tasks for records stuck in failed states.
// Called on a schedule by the binary; bounded per pass so a large backlog
// drains across passes instead of flooding the runner.
func (s *service) ResweepFailed(ctx context.Context) error {
	const perPass = 50

	if s.host != nil {
		failed, err := s.repository.ListByMirrorStatus(ctx, MirrorStatusMirrorFailed, perPass)
		if err != nil {
			return err
		}
		for _, record := range failed {
			id := record.ID
			s.runner.Submit("mirror-resweep", id.String(), func(ctx context.Context) error {
				return s.SyncMirror(ctx, id)
			})
		}
		if len(failed) > 0 {
			slog.Info("re-enqueued failed mirrors", "count", len(failed))
		}
	}

	if s.thumbnailer != nil {
		failed, err := s.repository.ListByThumbnailStatus(ctx, ThumbnailStatusFailed, perPass)
		if err != nil {
			return err
		}
		for _, record := range failed {
			id := record.ID
			s.runner.Submit("thumbnail-resweep", id.String(), func(ctx context.Context) error {
				return s.GenerateThumbnail(ctx, id)
			})
		}
		if len(failed) > 0 {
			slog.Info("re-enqueued failed thumbnails", "count", len(failed))
		}
	}

	return nil
}

func (s *service) readAll(ctx context.Context, backend, key string) ([]byte, error) {
	reader, err := s.blobStores[backend].Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

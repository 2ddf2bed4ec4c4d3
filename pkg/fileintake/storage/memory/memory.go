// Package memory provides an in-memory fileintake.BlobStore for tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

// Backend keeps objects in a map.
type Backend struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	mimeTypes map[string]string
	updatedAt map[string]time.Time
}

var _ fileintake.BlobStore = (*Backend)(nil)

// New creates an empty in-memory storage backend.
func New() *Backend {
	return &Backend{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
		updatedAt: make(map[string]time.Time),
	}
}

func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return b.UploadWithParams(ctx, reader, fileintake.UploadParams{
		ObjectKey: objectKey,
		MimeType:  "application/octet-stream",
	})
}

func (b *Backend) UploadWithParams(ctx context.Context, reader io.Reader, params fileintake.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[params.ObjectKey] = data
	if params.MimeType != "" {
		b.mimeTypes[params.ObjectKey] = params.MimeType
	} else if _, exists := b.mimeTypes[params.ObjectKey]; !exists {
		b.mimeTypes[params.ObjectKey] = "application/octet-stream"
	}
	b.updatedAt[params.ObjectKey] = time.Now().UTC()
	return nil
}

func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, fileintake.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return fileintake.ErrObjectNotFound
	}
	delete(b.objects, objectKey)
	delete(b.mimeTypes, objectKey)
	delete(b.updatedAt, objectKey)
	return nil
}

func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*fileintake.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, fileintake.ErrObjectNotFound
	}
	return &fileintake.ObjectMeta{
		Key:         objectKey,
		Size:        int64(len(data)),
		ContentType: b.mimeTypes[objectKey],
		UpdatedAt:   b.updatedAt[objectKey],
	}, nil
}

// Len reports the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

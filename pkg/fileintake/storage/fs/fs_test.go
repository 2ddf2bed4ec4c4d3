package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return backend
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestUploadDownloadDelete(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	content := []byte("hello world")
	require.NoError(t, backend.Upload(ctx, "owner/record/resume.pdf", bytes.NewReader(content)))

	reader, err := backend.Download(ctx, "owner/record/resume.pdf")
	require.NoError(t, err)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	reader.Close()
	assert.Equal(t, content, got)

	require.NoError(t, backend.Delete(ctx, "owner/record/resume.pdf"))

	_, err = backend.Download(ctx, "owner/record/resume.pdf")
	assert.ErrorIs(t, err, fileintake.ErrObjectNotFound)
}

func TestDeleteCleansEmptyDirectories(t *testing.T) {
	ctx := context.Background()
	baseDir := t.TempDir()
	backend, err := New(Config{BaseDir: baseDir})
	require.NoError(t, err)

	require.NoError(t, backend.Upload(ctx, "a/b/c.txt", bytes.NewReader([]byte("x"))))
	require.NoError(t, backend.Delete(ctx, "a/b/c.txt"))

	_, err = os.Stat(filepath.Join(baseDir, "a"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(baseDir)
	assert.NoError(t, err)
}

func TestUploadOverwrites(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	require.NoError(t, backend.Upload(ctx, "key", bytes.NewReader([]byte("first"))))
	require.NoError(t, backend.Upload(ctx, "key", bytes.NewReader([]byte("second"))))

	reader, err := backend.Download(ctx, "key")
	require.NoError(t, err)
	defer reader.Close()
	got, _ := io.ReadAll(reader)
	assert.Equal(t, []byte("second"), got)
}

func TestRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	err := backend.Upload(ctx, "../escape.txt", bytes.NewReader([]byte("x")))
	assert.Error(t, err)

	_, err = backend.Download(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, fileintake.ErrObjectNotFound)
}

func TestGetObjectMeta(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	content := []byte("%PDF-1.4 fake pdf content")
	require.NoError(t, backend.Upload(ctx, "doc.pdf", bytes.NewReader(content)))

	meta, err := backend.GetObjectMeta(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", meta.Key)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.False(t, meta.UpdatedAt.IsZero())

	_, err = backend.GetObjectMeta(ctx, "missing")
	assert.ErrorIs(t, err, fileintake.ErrObjectNotFound)
}

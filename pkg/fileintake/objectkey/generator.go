// Package objectkey generates the opaque physical keys storage backends use
// to address file bytes. Keys embed the record id, so they are globally
// unique and never reused even after hard deletion, and are never derived
// solely from user-controlled filename text.
package objectkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for physical key generation strategies
type Generator interface {
	// GenerateKey creates the primary key for a file's bytes.
	GenerateKey(ownerID, recordID uuid.UUID, sanitizedName string) string

	// ThumbnailKey creates the deterministic key for a file's thumbnail in
	// a separate namespace. Regeneration overwrites the same key.
	ThumbnailKey(ownerID, recordID uuid.UUID, ext string) string
}

// OwnerTreeGenerator lays keys out as {owner}/{record}/{name}, with
// thumbnails under a dedicated prefix. Readable on filesystem backends.
type OwnerTreeGenerator struct{}

func NewOwnerTreeGenerator() *OwnerTreeGenerator {
	return &OwnerTreeGenerator{}
}

func (g *OwnerTreeGenerator) GenerateKey(ownerID, recordID uuid.UUID, sanitizedName string) string {
	name := sanitizeKeyComponent(sanitizedName)
	if name == "" {
		return fmt.Sprintf("%s/%s", ownerID, recordID)
	}
	return fmt.Sprintf("%s/%s/%s", ownerID, recordID, name)
}

func (g *OwnerTreeGenerator) ThumbnailKey(ownerID, recordID uuid.UUID, ext string) string {
	return fmt.Sprintf("thumbnails/%s/%s.%s", ownerID, recordID, strings.TrimPrefix(ext, "."))
}

// ShardedGenerator spreads keys across two-character shard directories
// derived from the record id, which keeps object-store listings balanced.
// Layout: files/{shard}/{rest}_{name}, thumbnails/{shard}/{rest}.{ext}.
type ShardedGenerator struct {
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) shard(recordID uuid.UUID) (string, string) {
	id := strings.ReplaceAll(recordID.String(), "-", "")
	n := g.ShardLength
	if n <= 0 || n >= len(id) {
		n = 2
	}
	return id[:n], id[n:]
}

func (g *ShardedGenerator) GenerateKey(ownerID, recordID uuid.UUID, sanitizedName string) string {
	shard, rest := g.shard(recordID)
	name := sanitizeKeyComponent(sanitizedName)
	if name == "" {
		return fmt.Sprintf("files/%s/%s", shard, rest)
	}
	return fmt.Sprintf("files/%s/%s_%s", shard, rest, name)
}

func (g *ShardedGenerator) ThumbnailKey(ownerID, recordID uuid.UUID, ext string) string {
	shard, rest := g.shard(recordID)
	return fmt.Sprintf("thumbnails/%s/%s.%s", shard, rest, strings.TrimPrefix(ext, "."))
}

func sanitizeKeyComponent(component string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(component)
}
